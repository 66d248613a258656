package judge

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"imagestudio/internal/providers/genai"
)

type stubJSONClient struct {
	raw     []byte
	err     error
	lastReq genai.JSONRequest
	calls   int
}

func (s *stubJSONClient) GenerateJSON(ctx context.Context, req genai.JSONRequest) ([]byte, error) {
	s.calls++
	s.lastReq = req
	return s.raw, s.err
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func threeImages() []genai.InlineImage {
	return []genai.InlineImage{
		{MimeType: "image/png", Data: []byte{0}},
		{MimeType: "image/png", Data: []byte{1}},
		{MimeType: "image/png", Data: []byte{2}},
	}
}

func TestCompareMapsStructuredVerdict(t *testing.T) {
	client := &stubJSONClient{raw: []byte(`{
		"bestImageIndex": 2,
		"winnerReason": "cleanest exposure and strongest composition",
		"analyses": [
			{"index": 0, "score": 61, "critique": "noisy shadows"},
			{"index": 1, "score": 74, "critique": "flat light"},
			{"index": 2, "score": 88, "critique": "balanced and sharp"}
		]
	}`)}
	judge := New(client, testLogger())

	report, err := judge.Compare(context.Background(), threeImages())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("calls = %d, want exactly one request and no retry", client.calls)
	}
	if report.WinnerIndex != 2 {
		t.Fatalf("winner = %d, want 2", report.WinnerIndex)
	}
	if len(report.Analyses) != 3 {
		t.Fatalf("analyses = %d, want 3", len(report.Analyses))
	}
	seen := map[int]bool{}
	for _, a := range report.Analyses {
		if a.Index < 0 || a.Index > 2 {
			t.Fatalf("analysis index %d out of range", a.Index)
		}
		if seen[a.Index] {
			t.Fatalf("duplicate analysis index %d", a.Index)
		}
		seen[a.Index] = true
	}
	if len(client.lastReq.Images) != 3 || client.lastReq.Schema == nil {
		t.Fatalf("request not built correctly: %#v", client.lastReq)
	}
}

func TestCompareEmptyPayloadYieldsEmptyReport(t *testing.T) {
	judge := New(&stubJSONClient{raw: nil}, testLogger())

	report, err := judge.Compare(context.Background(), threeImages())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Analyses) != 0 || report.WinnerReason != "" {
		t.Fatalf("expected empty report, got %#v", report)
	}
}

func TestCompareProviderErrorPropagates(t *testing.T) {
	judge := New(&stubJSONClient{err: errors.New("overloaded")}, testLogger())

	if _, err := judge.Compare(context.Background(), threeImages()); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestCompareMalformedPayloadIsAnError(t *testing.T) {
	judge := New(&stubJSONClient{raw: []byte(`{"bestImageIndex": "not a number"`)}, testLogger())

	if _, err := judge.Compare(context.Background(), threeImages()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCompareClampsScoresAndWinnerIndex(t *testing.T) {
	client := &stubJSONClient{raw: []byte(`{
		"bestImageIndex": 7,
		"winnerReason": "hallucinated",
		"analyses": [
			{"index": 0, "score": -10, "critique": "a"},
			{"index": 1, "score": 250, "critique": "b"},
			{"index": 2, "score": 90, "critique": "c"}
		]
	}`)}
	judge := New(client, testLogger())

	report, err := judge.Compare(context.Background(), threeImages())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Analyses[0].Score != 0 || report.Analyses[1].Score != 100 {
		t.Fatalf("scores not clamped: %#v", report.Analyses)
	}
	// Index 1 holds the top clamped score, so the out-of-range winner falls
	// back to it.
	if report.WinnerIndex != 1 {
		t.Fatalf("winner = %d, want fallback to highest score", report.WinnerIndex)
	}
}
