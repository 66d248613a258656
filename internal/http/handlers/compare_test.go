package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"imagestudio/internal/judge"
)

func compareBody(t *testing.T, count int) *strings.Reader {
	t.Helper()
	images := make([]map[string]string, 0, count)
	for i := 0; i < count; i++ {
		images = append(images, map[string]string{
			"data_base64": base64.StdEncoding.EncodeToString([]byte{byte(i)}),
			"mime_type":   "image/png",
		})
	}
	raw, err := json.Marshal(map[string]any{"images": images})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return strings.NewReader(string(raw))
}

func TestCompareReturnsReport(t *testing.T) {
	comparator := &stubComparator{report: &judge.Report{
		WinnerIndex:  1,
		WinnerReason: "best exposure",
		Analyses: []judge.Analysis{
			{Index: 0, Score: 70, Critique: "soft"},
			{Index: 1, Score: 85, Critique: "sharp"},
			{Index: 2, Score: 60, Critique: "noisy"},
		},
	}}
	app := newTestApp(&stubBatcher{}, comparator)

	rec := httptest.NewRecorder()
	app.Compare(rec, httptest.NewRequest(http.MethodPost, "/v1/images/compare", compareBody(t, 3)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if comparator.lastLen != 3 {
		t.Fatalf("comparator received %d images, want 3", comparator.lastLen)
	}
	var report judge.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.WinnerIndex != 1 || len(report.Analyses) != 3 {
		t.Fatalf("unexpected report: %#v", report)
	}
}

func TestCompareEnforcesImageCountBounds(t *testing.T) {
	for _, count := range []int{0, 1, 5} {
		comparator := &stubComparator{}
		app := newTestApp(&stubBatcher{}, comparator)

		rec := httptest.NewRecorder()
		app.Compare(rec, httptest.NewRequest(http.MethodPost, "/v1/images/compare", compareBody(t, count)))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("count %d: status = %d, want 400", count, rec.Code)
		}
		if comparator.calls != 0 {
			t.Fatalf("count %d: comparator must not be called", count)
		}
	}
}

func TestCompareRejectsEmptyImagePayload(t *testing.T) {
	raw := `{"images":[{"data_base64":"","mime_type":"image/png"},{"data_base64":"AQ==","mime_type":"image/png"}]}`
	app := newTestApp(&stubBatcher{}, &stubComparator{})

	rec := httptest.NewRecorder()
	app.Compare(rec, httptest.NewRequest(http.MethodPost, "/v1/images/compare", strings.NewReader(raw)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCompareFailurePropagatesAsBadGateway(t *testing.T) {
	app := newTestApp(&stubBatcher{}, &stubComparator{err: errors.New("schema violation")})

	rec := httptest.NewRecorder()
	app.Compare(rec, httptest.NewRequest(http.MethodPost, "/v1/images/compare", compareBody(t, 2)))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "compare_failed") {
		t.Fatalf("missing error code: %s", rec.Body.String())
	}
}
