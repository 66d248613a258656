package variation

import (
	"context"
	"time"

	"imagestudio/internal/infra"
	"imagestudio/internal/providers/genai"
)

// ImageClient is the slice of the provider client the generator needs.
type ImageClient interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.InlineImage, error)
}

// Generator produces one derived image per invocation, absorbing transient
// provider failures with bounded retry. Exhausting the attempt budget returns
// nil, the explicit absence; the caller never sees per-attempt errors.
type Generator struct {
	client      ImageClient
	logger      *infra.Logger
	maxAttempts int

	// wait pauses between attempts; swapped out in tests. Returns false when
	// the context was cancelled during the pause.
	wait func(ctx context.Context, d time.Duration) bool
}

// NewGenerator constructs a Generator. maxAttempts below 1 is clamped to 1.
func NewGenerator(client ImageClient, logger *infra.Logger, maxAttempts int) *Generator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Generator{
		client:      client,
		logger:      logger,
		maxAttempts: maxAttempts,
		wait:        sleepCtx,
	}
}

// Generate runs up to maxAttempts sequential attempts against the provider and
// returns the first image part found, or nil once the budget is exhausted.
// Between attempts it backs off 1s, 2s, 4s, ... with no wait after the final
// attempt. A response without an image payload retries exactly like a
// transport error.
func (g *Generator) Generate(ctx context.Context, req Request) *genai.InlineImage {
	instruction := BuildInstruction(req)

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		img, err := g.client.GenerateImage(ctx, genai.ImageRequest{
			Instruction: instruction,
			Reference:   req.Reference,
			AspectRatio: req.AspectRatio,
		})
		if err == nil && img != nil && len(img.Data) > 0 {
			return img
		}
		if err == nil {
			err = genai.ErrNoImage
		}
		lastErr = err
		g.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", g.maxAttempts).
			Msg("variation: attempt failed")

		if attempt == g.maxAttempts {
			break
		}
		delay := time.Second << (attempt - 1)
		if !g.wait(ctx, delay) {
			g.logger.Warn().Int("attempt", attempt).Msg("variation: cancelled during backoff")
			return nil
		}
	}

	g.logger.Error().
		Err(lastErr).
		Int("max_attempts", g.maxAttempts).
		Msg("variation: all attempts exhausted")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
