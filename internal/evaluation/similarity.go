package evaluation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
	"github.com/Divas-Gupta30/agentgate/internal/processing"
)

const DefaultSimilarityThreshold = 0.7

// SimilarityScorer compares a candidate with its reference by cosine
// similarity of their embeddings.
type SimilarityScorer struct {
	embedder  processing.Embedder
	threshold float64
	timeout   time.Duration
}

// NewSimilarityScorer returns a scorer. timeout bounds each embedding call;
// zero means no per-call budget beyond ctx.
func NewSimilarityScorer(embedder processing.Embedder, threshold float64, timeout time.Duration) (*SimilarityScorer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold %v outside [0,1]", threshold)
	}
	return &SimilarityScorer{embedder: embedder, threshold: threshold, timeout: timeout}, nil
}

// Threshold returns the configured PASS threshold.
func (s *SimilarityScorer) Threshold() float64 { return s.threshold }

// Score embeds both texts and returns their similarity clipped to [0,1].
func (s *SimilarityScorer) Score(ctx context.Context, candidate, reference string) (SimilarityResult, error) {
	if strings.TrimSpace(candidate) == "" {
		return SimilarityResult{}, fmt.Errorf("similarity: candidate text: %w", apperr.ErrEmptyInput)
	}
	if strings.TrimSpace(reference) == "" {
		return SimilarityResult{}, fmt.Errorf("similarity: reference text: %w", apperr.ErrEmptyInput)
	}

	var candVec, refVec []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		candVec, err = s.embed(gctx, candidate)
		return err
	})
	g.Go(func() (err error) {
		refVec, err = s.embed(gctx, reference)
		return err
	})
	if err := g.Wait(); err != nil {
		return SimilarityResult{}, err
	}

	score, err := cosine(candVec, refVec)
	if err != nil {
		return SimilarityResult{}, fmt.Errorf("similarity: %w", err)
	}
	return NewSimilarityResult(score, s.threshold), nil
}

func (s *SimilarityScorer) embed(ctx context.Context, text string) ([]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperr.Timeout("embed", fmt.Errorf("embedding text: %w", err))
	}
	return vec, nil
}

// cosine is computed in float64. Identical vectors score exactly 1.
func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	identical := true
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		if a[i] != b[i] {
			identical = false
		}
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("embedding has zero magnitude: %w", apperr.ErrEmptyInput)
	}
	if identical {
		return 1, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
