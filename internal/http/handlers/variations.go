package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"imagestudio/internal/middleware"
	"imagestudio/internal/providers/genai"
	"imagestudio/internal/variation"
	"imagestudio/pkg/dataurl"
)

var allowedAspectRatios = map[string]struct{}{
	"1:1":  {},
	"9:16": {},
	"16:9": {},
}

type variationsRequest struct {
	ImageBase64    string `json:"image_base64"`
	MimeType       string `json:"mime_type"`
	Instruction    string `json:"instruction"`
	AspectRatio    string `json:"aspect_ratio"`
	EnhanceQuality bool   `json:"enhance_quality"`
}

type variationItem struct {
	ID        uint64    `json:"id"`
	Image     string    `json:"image"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

type variationsResponse struct {
	Items     []variationItem `json:"items"`
	Succeeded int             `json:"succeeded"`
	Requested int             `json:"requested"`
}

// VariationsGenerate validates the upload, fans it out to the batch
// orchestrator, and returns the surviving variations as renderable data URLs.
// Input validation lives here, in front of any provider call.
func (a *App) VariationsGenerate(w http.ResponseWriter, r *http.Request) {
	var req variationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	reference, mime, ok := decodeImagePayload(req.ImageBase64, req.MimeType)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "image_base64 must be valid base64 or a data URL")
		return
	}
	if len(reference) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "a reference image is required")
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "an instruction is required")
		return
	}
	aspect := strings.TrimSpace(req.AspectRatio)
	if aspect == "" {
		aspect = "1:1"
	}
	if _, ok := allowedAspectRatios[aspect]; !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "aspect_ratio must be one of 1:1, 9:16, 16:9")
		return
	}

	result, err := a.Batcher.GenerateBatch(r.Context(), variation.Request{
		Reference:      genai.InlineImage{MimeType: mime, Data: reference},
		Instruction:    req.Instruction,
		AspectRatio:    aspect,
		EnhanceQuality: req.EnhanceQuality,
	})
	if err != nil {
		if errors.Is(err, variation.ErrBatchFailed) {
			a.errorLocalized(w, r, http.StatusBadGateway, "batch_failed")
			return
		}
		a.Logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("handlers: variation batch failed unexpectedly")
		a.error(w, http.StatusInternalServerError, "internal", "failed to generate variations")
		return
	}

	items := make([]variationItem, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, variationItem{
			ID:        item.ID,
			Image:     dataurl.Encode(item.Image.MimeType, item.Image.Data),
			MimeType:  item.Image.MimeType,
			CreatedAt: item.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, variationsResponse{
		Items:     items,
		Succeeded: len(items),
		Requested: result.Requested,
	})
}

// VariationsProgress exposes the "k of N done" counter for the batch in
// flight, so a client can poll while waiting for the generate call to return.
func (a *App) VariationsProgress(w http.ResponseWriter, r *http.Request) {
	completed, total := a.Batcher.Progress()
	a.json(w, http.StatusOK, map[string]int{"completed": completed, "total": total})
}

// decodeImagePayload accepts either a bare base64 string or a full data URL
// and returns the raw bytes plus the effective mime type.
func decodeImagePayload(payload, declaredMime string) (data []byte, mime string, ok bool) {
	payload = strings.TrimSpace(payload)
	mime = strings.TrimSpace(declaredMime)
	if mime == "" {
		mime = "image/png"
	}
	if payload == "" {
		return nil, mime, true
	}
	if strings.HasPrefix(payload, "data:") {
		urlMime, decoded, err := dataurl.Decode(payload)
		if err != nil {
			return nil, "", false
		}
		return decoded, urlMime, true
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", false
	}
	return decoded, mime, true
}
