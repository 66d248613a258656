package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"imagestudio/internal/infra"
	"imagestudio/internal/providers/genai"
)

// Analysis is the provider's verdict on one image, keyed by its input index.
type Analysis struct {
	Index    int    `json:"index"`
	Score    int    `json:"score"`
	Critique string `json:"critique"`
}

// Report ranks a set of 2-4 images. The winner index always refers to the
// caller's input order.
type Report struct {
	WinnerIndex  int        `json:"winner_index"`
	WinnerReason string     `json:"winner_reason"`
	Analyses     []Analysis `json:"analyses"`
}

// JSONClient is the slice of the provider client the judge needs.
type JSONClient interface {
	GenerateJSON(ctx context.Context, req genai.JSONRequest) ([]byte, error)
}

// Judge ranks images in a single structured-judgment call. Unlike the
// variation path there is no retry: a ranking is one consistent cross-image
// verdict, and re-running half of it is meaningless. Callers that want a
// retry repeat the whole comparison.
type Judge struct {
	client JSONClient
	logger *infra.Logger
}

// New constructs a Judge.
func New(client JSONClient, logger *infra.Logger) *Judge {
	return &Judge{client: client, logger: logger}
}

const rubric = `You are a professional photography judge. Compare the attached images.
Judge technical quality (sharpness, noise, exposure, dynamic range) and
aesthetic quality (composition, color, lighting, overall impact).
For every image, give an integer score from 0 to 100 and a short critique.
Then pick the single best image and explain why it wins.
Image indices are zero-based and follow the order the images are attached in.`

type judgmentPayload struct {
	BestImageIndex int    `json:"bestImageIndex"`
	WinnerReason   string `json:"winnerReason"`
	Analyses       []struct {
		Index    int    `json:"index"`
		Score    int    `json:"score"`
		Critique string `json:"critique"`
	} `json:"analyses"`
}

// Compare sends all images in one request and maps the structured verdict into
// a Report. Provider errors and unparseable payloads propagate to the caller;
// an empty or missing payload deliberately yields an empty report so the
// caller can render "no data" instead of failing. Image count validation
// (2-4) is the calling layer's job.
func (j *Judge) Compare(ctx context.Context, images []genai.InlineImage) (*Report, error) {
	raw, err := j.client.GenerateJSON(ctx, genai.JSONRequest{
		Instruction: rubric,
		Images:      images,
		Schema:      judgmentSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("compare images: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		j.logger.Warn().Int("images", len(images)).Msg("judge: empty judgment payload")
		return &Report{}, nil
	}

	var payload judgmentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode judgment payload: %w", err)
	}

	report := &Report{
		WinnerIndex:  payload.BestImageIndex,
		WinnerReason: payload.WinnerReason,
		Analyses:     make([]Analysis, 0, len(payload.Analyses)),
	}
	for _, a := range payload.Analyses {
		report.Analyses = append(report.Analyses, Analysis{
			Index:    a.Index,
			Score:    clampScore(a.Score),
			Critique: a.Critique,
		})
	}

	// The provider is trusted to conform to the schema but not blindly: an
	// out-of-range winner falls back to the highest-scoring analyzed index.
	if report.WinnerIndex < 0 || report.WinnerIndex >= len(images) {
		j.logger.Warn().
			Int("winner_index", report.WinnerIndex).
			Int("images", len(images)).
			Msg("judge: winner index out of range")
		report.WinnerIndex = bestScoredIndex(report.Analyses)
	}

	return report, nil
}

func judgmentSchema() *genai.Schema {
	return &genai.Schema{
		Type: "object",
		Properties: map[string]*genai.Schema{
			"bestImageIndex": {Type: "integer", Description: "Zero-based index of the best image."},
			"winnerReason":   {Type: "string", Description: "Why the best image wins."},
			"analyses": {
				Type: "array",
				Items: &genai.Schema{
					Type: "object",
					Properties: map[string]*genai.Schema{
						"index":    {Type: "integer"},
						"score":    {Type: "integer", Description: "0-100 quality score."},
						"critique": {Type: "string"},
					},
					Required: []string{"index", "score", "critique"},
				},
			},
		},
		Required: []string{"bestImageIndex", "winnerReason", "analyses"},
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func bestScoredIndex(analyses []Analysis) int {
	best := 0
	bestScore := -1
	for _, a := range analyses {
		if a.Score > bestScore {
			best = a.Index
			bestScore = a.Score
		}
	}
	if bestScore < 0 {
		return 0
	}
	return best
}
