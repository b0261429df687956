package evaluation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
)

// mapEmbedder returns a fixed vector per text.
type mapEmbedder struct {
	vectors map[string][]float32
	err     error
	delay   time.Duration
}

func (m *mapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.vectors[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return v, nil
}

func TestSimilarityScorer_Score(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{
		"paris":    {1, 0, 0},
		"france":   {0.8, 0.6, 0},
		"bananas":  {0, 0, 1},
		"opposite": {-1, 0, 0},
		"short":    {1, 0},
		"zero":     {0, 0, 0},
	}}
	scorer, err := NewSimilarityScorer(emb, DefaultSimilarityThreshold, time.Second)
	require.NoError(t, err)

	tests := []struct {
		name      string
		candidate string
		reference string
		wantScore float64
		want      CheckVerdict
	}{
		{"close", "paris", "france", 0.8, CheckPass},
		{"orthogonal", "paris", "bananas", 0, CheckFail},
		{"negative clipped to zero", "paris", "opposite", 0, CheckFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := scorer.Score(context.Background(), tt.candidate, tt.reference)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, r.Score, 1e-6)
			assert.Equal(t, tt.want, r.Verdict)
			assert.Equal(t, DefaultSimilarityThreshold, r.Threshold)
		})
	}

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := scorer.Score(context.Background(), "paris", "short")
		require.Error(t, err)
		assert.False(t, apperr.IsEscalatable(err))
	})

	t.Run("zero vector", func(t *testing.T) {
		_, err := scorer.Score(context.Background(), "paris", "zero")
		assert.ErrorIs(t, err, apperr.ErrEmptyInput)
	})
}

func TestSimilarityScorer_Reflexive(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{
		"The Eiffel Tower is in Paris.": {0.123, -0.456, 0.789, 0.001},
	}}
	scorer, err := NewSimilarityScorer(emb, DefaultSimilarityThreshold, 0)
	require.NoError(t, err)

	text := "The Eiffel Tower is in Paris."
	r, err := scorer.Score(context.Background(), text, text)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Score)
	assert.Equal(t, CheckPass, r.Verdict)
}

func TestSimilarityScorer_EmptyInput(t *testing.T) {
	scorer, err := NewSimilarityScorer(&mapEmbedder{}, DefaultSimilarityThreshold, 0)
	require.NoError(t, err)

	for _, pair := range [][2]string{{"", "ref"}, {"cand", ""}, {"  \n\t", "ref"}, {"cand", "   "}} {
		_, err := scorer.Score(context.Background(), pair[0], pair[1])
		assert.ErrorIs(t, err, apperr.ErrEmptyInput, "%q / %q", pair[0], pair[1])
	}
}

func TestSimilarityScorer_EmbeddingErrors(t *testing.T) {
	t.Run("provider failure", func(t *testing.T) {
		scorer, err := NewSimilarityScorer(&mapEmbedder{err: errors.New("connection refused")}, 0.7, 0)
		require.NoError(t, err)

		_, err = scorer.Score(context.Background(), "a", "b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.False(t, apperr.IsEscalatable(err))
	})

	t.Run("per call timeout", func(t *testing.T) {
		scorer, err := NewSimilarityScorer(&mapEmbedder{delay: time.Second}, 0.7, 10*time.Millisecond)
		require.NoError(t, err)

		_, err = scorer.Score(context.Background(), "a", "b")
		assert.ErrorIs(t, err, apperr.ErrTimeout)
	})
}

func TestNewSimilarityScorer_Validation(t *testing.T) {
	_, err := NewSimilarityScorer(nil, 0.7, 0)
	assert.Error(t, err)

	_, err = NewSimilarityScorer(&mapEmbedder{}, 1.5, 0)
	assert.Error(t, err)

	s, err := NewSimilarityScorer(&mapEmbedder{}, 0.5, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.Threshold())
}

func TestCosine(t *testing.T) {
	got, err := cosine([]float32{1, 2, 3}, []float32{2, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, err = cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	got, err = cosine([]float32{3, 4}, []float32{4, 3})
	require.NoError(t, err)
	assert.InDelta(t, 24.0/25.0, got, 1e-9)
	assert.False(t, math.IsNaN(got))
}
