package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imagestudio/internal/judge"
	"imagestudio/internal/providers/genai"
	"imagestudio/internal/variation"
)

type stubBatcher struct {
	result    *variation.BatchResult
	err       error
	calls     int
	lastReq   variation.Request
	completed int
	total     int
}

func (s *stubBatcher) GenerateBatch(ctx context.Context, req variation.Request) (*variation.BatchResult, error) {
	s.calls++
	s.lastReq = req
	return s.result, s.err
}

func (s *stubBatcher) Progress() (int, int) {
	return s.completed, s.total
}

type stubComparator struct {
	report  *judge.Report
	err     error
	calls   int
	lastLen int
}

func (s *stubComparator) Compare(ctx context.Context, images []genai.InlineImage) (*judge.Report, error) {
	s.calls++
	s.lastLen = len(images)
	return s.report, s.err
}

func newTestApp(batcher *stubBatcher, comparator *stubComparator) *App {
	return NewApp(zerolog.New(io.Discard), batcher, comparator)
}

func generateBody(t *testing.T, overrides map[string]any) *strings.Reader {
	t.Helper()
	body := map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
		"mime_type":    "image/jpeg",
		"instruction":  "make it dramatic",
		"aspect_ratio": "1:1",
	}
	for k, v := range overrides {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return strings.NewReader(string(raw))
}

func TestVariationsGenerateReturnsDataURLs(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batcher := &stubBatcher{result: &variation.BatchResult{
		Items: []variation.Variation{
			{ID: 1, Image: genai.InlineImage{MimeType: "image/png", Data: []byte{9}}, CreatedAt: created},
			{ID: 2, Image: genai.InlineImage{MimeType: "image/png", Data: []byte{8}}, CreatedAt: created},
		},
		Requested: 4,
	}}
	app := newTestApp(batcher, &stubComparator{})

	rec := httptest.NewRecorder()
	app.VariationsGenerate(rec, httptest.NewRequest(http.MethodPost, "/v1/images/variations", generateBody(t, map[string]any{"enhance_quality": true})))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Items []struct {
			ID       uint64 `json:"id"`
			Image    string `json:"image"`
			MimeType string `json:"mime_type"`
		} `json:"items"`
		Succeeded int `json:"succeeded"`
		Requested int `json:"requested"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Succeeded != 2 || resp.Requested != 4 {
		t.Fatalf("succeeded/requested = %d/%d, want 2/4", resp.Succeeded, resp.Requested)
	}
	if len(resp.Items) != 2 || !strings.HasPrefix(resp.Items[0].Image, "data:image/png;base64,") {
		t.Fatalf("items not rendered as data URLs: %#v", resp.Items)
	}
	if !batcher.lastReq.EnhanceQuality || batcher.lastReq.AspectRatio != "1:1" {
		t.Fatalf("request not forwarded: %#v", batcher.lastReq)
	}
	if batcher.lastReq.Reference.MimeType != "image/jpeg" {
		t.Fatalf("reference mime = %q", batcher.lastReq.Reference.MimeType)
	}
}

func TestVariationsGenerateAcceptsDataURLInput(t *testing.T) {
	batcher := &stubBatcher{result: &variation.BatchResult{Requested: 4, Items: []variation.Variation{{ID: 1, Image: genai.InlineImage{MimeType: "image/webp", Data: []byte{7}}}}}}
	app := newTestApp(batcher, &stubComparator{})

	body := generateBody(t, map[string]any{
		"image_base64": "data:image/webp;base64," + base64.StdEncoding.EncodeToString([]byte{7, 7}),
		"mime_type":    "",
	})
	rec := httptest.NewRecorder()
	app.VariationsGenerate(rec, httptest.NewRequest(http.MethodPost, "/v1/images/variations", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if batcher.lastReq.Reference.MimeType != "image/webp" {
		t.Fatalf("mime from data URL not used: %q", batcher.lastReq.Reference.MimeType)
	}
}

func TestVariationsGenerateValidation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"missing image", map[string]any{"image_base64": ""}},
		{"bad base64", map[string]any{"image_base64": "@@@"}},
		{"missing instruction", map[string]any{"instruction": "  "}},
		{"bad aspect ratio", map[string]any{"aspect_ratio": "4:3"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			batcher := &stubBatcher{}
			app := newTestApp(batcher, &stubComparator{})
			rec := httptest.NewRecorder()
			app.VariationsGenerate(rec, httptest.NewRequest(http.MethodPost, "/v1/images/variations", generateBody(t, tc.overrides)))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if batcher.calls != 0 {
				t.Fatal("validation must reject before any provider call")
			}
		})
	}
}

func TestVariationsGenerateTotalFailureIsLocalized(t *testing.T) {
	app := newTestApp(&stubBatcher{err: variation.ErrBatchFailed}, &stubComparator{})

	rec := httptest.NewRecorder()
	app.VariationsGenerate(rec, httptest.NewRequest(http.MethodPost, "/v1/images/variations", generateBody(t, nil)))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "safety-filtered") {
		t.Fatalf("missing user-facing hint: %s", rec.Body.String())
	}
}

func TestVariationsProgress(t *testing.T) {
	app := newTestApp(&stubBatcher{completed: 3, total: 4}, &stubComparator{})

	rec := httptest.NewRecorder()
	app.VariationsProgress(rec, httptest.NewRequest(http.MethodGet, "/v1/images/variations/progress", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["completed"] != 3 || resp["total"] != 4 {
		t.Fatalf("progress = %v, want 3/4", resp)
	}
}
