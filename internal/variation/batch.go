package variation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"imagestudio/internal/infra"
	"imagestudio/internal/providers/genai"
)

// ErrBatchFailed is the single aggregate error surfaced when every invocation
// of a batch exhausted its retries.
var ErrBatchFailed = errors.New("unable to generate after multiple attempts; the provider may be filtering this content or overloaded")

// Source yields one variation per invocation, nil meaning absence.
type Source interface {
	Generate(ctx context.Context, req Request) *genai.InlineImage
}

// Variation is one surviving result of a batch, tagged for UI display.
type Variation struct {
	ID        uint64
	Image     genai.InlineImage
	CreatedAt time.Time
}

// BatchResult is the ordered outcome of one batch, replaced wholesale by the
// next batch.
type BatchResult struct {
	Items     []Variation
	Requested int
}

// Batcher fans a request out to count independent, identically-parameterized
// invocations and joins them unconditionally. Invocations are intentionally
// not deduplicated: the provider samples a fresh output for each one.
type Batcher struct {
	source Source
	logger *infra.Logger
	count  int

	completed atomic.Int32
	nextID    atomic.Uint64
	now       func() time.Time
}

// NewBatcher constructs a Batcher with the given fan-out. count below 1 is
// clamped to 1.
func NewBatcher(source Source, logger *infra.Logger, count int) *Batcher {
	if count < 1 {
		count = 1
	}
	return &Batcher{
		source: source,
		logger: logger,
		count:  count,
		now:    time.Now,
	}
}

// Progress reports how many invocations of the current batch have completed
// successfully. The counter resets to zero when a new batch starts and only
// ever increases within one batch.
func (b *Batcher) Progress() (completed, total int) {
	return int(b.completed.Load()), b.count
}

// GenerateBatch launches the fan-out, waits for every invocation to settle,
// and returns the surviving results in launch order. A slow invocation is
// never aborted because its siblings finished, and a failing one never
// cancels them. Zero successes collapse into ErrBatchFailed; one or more
// successes surface no error at all.
func (b *Batcher) GenerateBatch(ctx context.Context, req Request) (*BatchResult, error) {
	b.completed.Store(0)

	results := make([]*genai.InlineImage, b.count)
	var group errgroup.Group
	for i := range results {
		i := i
		group.Go(func() error {
			if img := b.source.Generate(ctx, req); img != nil {
				results[i] = img
				b.completed.Add(1)
			}
			return nil
		})
	}
	// Generate never returns an error; Wait is purely the join point.
	_ = group.Wait()

	items := b.assemble(results)
	if len(items) == 0 {
		b.logger.Error().Int("requested", b.count).Msg("variation: batch produced no images")
		return nil, ErrBatchFailed
	}

	b.logger.Info().
		Int("requested", b.count).
		Int("succeeded", len(items)).
		Msg("variation: batch complete")

	return &BatchResult{Items: items, Requested: b.count}, nil
}

// assemble filters out absences and tags survivors, preserving launch order.
// IDs are assigned after the join so they increase monotonically across the
// session regardless of completion order.
func (b *Batcher) assemble(results []*genai.InlineImage) []Variation {
	items := make([]Variation, 0, len(results))
	for _, img := range results {
		if img == nil {
			continue
		}
		items = append(items, Variation{
			ID:        b.nextID.Add(1),
			Image:     *img,
			CreatedAt: b.now(),
		})
	}
	return items
}
