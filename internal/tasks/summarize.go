package tasks

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
	"github.com/Divas-Gupta30/agentgate/internal/evaluation"
	"github.com/Divas-Gupta30/agentgate/internal/generation"
	"github.com/Divas-Gupta30/agentgate/internal/graph"
	"github.com/Divas-Gupta30/agentgate/internal/ingestion"
	"github.com/Divas-Gupta30/agentgate/internal/logging"
	"github.com/Divas-Gupta30/agentgate/internal/processing"
)

const summarySystemInstruction = "You are a professional text summarization assistant. Create clear, concise " +
	"and accurate summaries. Focus on the main ideas, key points and essential information. Stay objective " +
	"and do not add information that is not present in the original text."

var lengthGuide = map[string]string{
	"short":  "in 2-3 sentences",
	"medium": "in 1-2 paragraphs",
	"long":   "in 3-4 paragraphs with detailed key points",
}

// Extractor turns a path or URL into text.
type Extractor interface {
	Extract(ctx context.Context, source string) (ingestion.Document, error)
}

// SummarizerConfig tunes the summarization task.
type SummarizerConfig struct {
	Temperature      float32
	ChunkSize        int
	ChunkOverlap     int
	ChunkConcurrency int
	Model            string
}

// Summarizer is the task stage for summarize_document and detect_language.
type Summarizer struct {
	gen       generation.Generator
	extractor Extractor
	cfg       SummarizerConfig
	logger    *zap.Logger
}

func NewSummarizer(gen generation.Generator, extractor Extractor, cfg SummarizerConfig, logger *zap.Logger) (*Summarizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("summarizer: generator is required")
	}
	if extractor == nil {
		extractor = ingestion.NewExtractor(nil)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize, cfg.ChunkOverlap = processing.DefaultChunkSize, processing.DefaultChunkOverlap
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = 4
	}
	return &Summarizer{gen: gen, extractor: extractor, cfg: cfg, logger: logging.OrNop(logger)}, nil
}

// Execute extracts, chunks and summarizes the document named by the
// request's path or text param.
func (s *Summarizer) Execute(ctx context.Context, req graph.Request) (graph.TaskOutput, error) {
	maxLength := strings.ToLower(req.ParamOr("max_length", "medium"))
	if req.Capability == graph.CapabilityDetectLanguage {
		maxLength = "short"
	}
	if _, ok := lengthGuide[maxLength]; !ok {
		return graph.TaskOutput{}, fmt.Errorf("%w: max_length must be short, medium or long, got %q", apperr.ErrInvalid, maxLength)
	}

	doc, err := s.load(ctx, req)
	if err != nil {
		return graph.TaskOutput{}, err
	}
	text := strings.TrimSpace(doc.Text)
	lang := ingestion.DetectLanguage(text)

	chunks := processing.PackChunks(processing.ChunkTextSize(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap), s.cfg.ChunkSize)
	if len(chunks) == 0 {
		return graph.TaskOutput{}, fmt.Errorf("%w: document has no text", apperr.ErrEmptyInput)
	}
	s.logger.Debug("document chunked",
		zap.String("source", doc.Source),
		zap.Int("pages", doc.Pages),
		zap.Int("chunks", len(chunks)),
		zap.String("language", lang.Code))

	var final string
	var chunkSummaries []string
	if len(chunks) == 1 {
		if final, err = s.summarize(ctx, chunks[0], maxLength); err != nil {
			return graph.TaskOutput{}, err
		}
		chunkSummaries = []string{final}
	} else {
		if chunkSummaries, err = s.summarizeChunks(ctx, chunks); err != nil {
			return graph.TaskOutput{}, err
		}
		final, err = s.summarize(ctx, strings.Join(chunkSummaries, "\n\n"), maxLength)
		if err != nil {
			return graph.TaskOutput{}, fmt.Errorf("combining chunk summaries: %w", err)
		}
	}

	payload := map[string]any{
		"summary":         final,
		"source":          doc.Source,
		"pages":           doc.Pages,
		"language":        lang.Code,
		"num_chunks":      len(chunks),
		"chunk_summaries": chunkSummaries,
		"input_length":    len(text),
		"summary_length":  len(final),
		"max_length":      maxLength,
	}
	if s.cfg.Model != "" {
		payload["model"] = s.cfg.Model
	}
	if req.Capability == graph.CapabilityDetectLanguage {
		payload["language_name"] = lang.Name
		payload["language_confidence"] = lang.Confidence
	}
	return graph.TaskOutput{
		Evidence: evaluation.EvidencePair{ProducedArtifact: final, SourceMaterial: text},
		Payload:  payload,
	}, nil
}

func (s *Summarizer) load(ctx context.Context, req graph.Request) (ingestion.Document, error) {
	if text := req.Param("text"); text != "" {
		return ingestion.Document{Source: "inline", Kind: "text", Pages: 1, Text: text}, nil
	}
	path := req.Param("path")
	if path == "" {
		return ingestion.Document{}, fmt.Errorf("%w: summarization needs a path or text param", apperr.ErrInvalid)
	}
	return s.extractor.Extract(ctx, path)
}

// summarizeChunks summarizes every chunk at medium length. Results keep chunk
// order; the first failure cancels the rest.
func (s *Summarizer) summarizeChunks(ctx context.Context, chunks []string) ([]string, error) {
	out := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ChunkConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			summary, err := s.summarize(gctx, chunk, "medium")
			if err != nil {
				return fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
			}
			out[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Summarizer) summarize(ctx context.Context, text, maxLength string) (string, error) {
	prompt := fmt.Sprintf("Please summarize the following text %s:\n\n%s", lengthGuide[maxLength], text)
	summary, err := s.gen.Generate(ctx, prompt, summarySystemInstruction, s.cfg.Temperature)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}
