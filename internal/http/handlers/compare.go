package handlers

import (
	"encoding/json"
	"net/http"

	"imagestudio/internal/middleware"
	"imagestudio/internal/providers/genai"
)

type compareImage struct {
	DataBase64 string `json:"data_base64"`
	MimeType   string `json:"mime_type"`
}

type compareRequest struct {
	Images []compareImage `json:"images"`
}

// Compare ranks 2-4 submitted images in a single judgment call. The count
// bounds are enforced here; the comparator itself forwards whatever it gets.
func (a *App) Compare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Images) < 2 || len(req.Images) > 4 {
		a.error(w, http.StatusBadRequest, "bad_request", "between 2 and 4 images are required")
		return
	}

	images := make([]genai.InlineImage, 0, len(req.Images))
	for _, img := range req.Images {
		data, mime, ok := decodeImagePayload(img.DataBase64, img.MimeType)
		if !ok || len(data) == 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "every image needs a valid payload")
			return
		}
		images = append(images, genai.InlineImage{MimeType: mime, Data: data})
	}

	report, err := a.Judge.Compare(r.Context(), images)
	if err != nil {
		a.Logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("handlers: comparison failed")
		a.errorLocalized(w, r, http.StatusBadGateway, "compare_failed")
		return
	}
	a.json(w, http.StatusOK, report)
}
