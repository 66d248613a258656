package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"imagestudio/internal/infra"
	"imagestudio/internal/judge"
	"imagestudio/internal/middleware"
	"imagestudio/internal/providers/genai"
	"imagestudio/internal/variation"
)

// BatchGenerator is the variation orchestration surface the handlers consume.
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, req variation.Request) (*variation.BatchResult, error)
	Progress() (completed, total int)
}

// Comparator ranks a set of images.
type Comparator interface {
	Compare(ctx context.Context, images []genai.InlineImage) (*judge.Report, error)
}

// App bundles the handler dependencies.
type App struct {
	Logger  infra.Logger
	Batcher BatchGenerator
	Judge   Comparator
}

func NewApp(logger infra.Logger, batcher BatchGenerator, judge Comparator) *App {
	return &App{Logger: logger, Batcher: batcher, Judge: judge}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// userMessages holds the localized copies of user-facing error strings, keyed
// by error code then locale.
var userMessages = map[string]map[string]string{
	"batch_failed": {
		"en": "Unable to generate images after multiple attempts. The content may be safety-filtered or the service overloaded; please try again.",
		"id": "Tidak dapat menghasilkan gambar setelah beberapa percobaan. Konten mungkin terkena filter keamanan atau layanan sedang penuh; silakan coba lagi.",
	},
	"compare_failed": {
		"en": "The quality comparison failed. Please try again.",
		"id": "Perbandingan kualitas gagal. Silakan coba lagi.",
	},
}

func (a *App) errorLocalized(w http.ResponseWriter, r *http.Request, status int, code string) {
	locale := middleware.LocaleFromContext(r.Context())
	messages, ok := userMessages[code]
	if !ok {
		a.error(w, status, code, code)
		return
	}
	message, ok := messages[locale]
	if !ok {
		message = messages["en"]
	}
	a.error(w, status, code, message)
}
