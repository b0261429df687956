package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Divas-Gupta30/agentgate/internal/evaluation"
	"github.com/Divas-Gupta30/agentgate/internal/logging"
)

const createReportsTable = `
CREATE TABLE IF NOT EXISTS evaluation_reports (
	id SERIAL PRIMARY KEY,
	run_id VARCHAR(64) NOT NULL,
	workflow VARCHAR(100) NOT NULL,
	capability VARCHAR(50) NOT NULL,
	overall_verdict VARCHAR(20) NOT NULL,
	recommendation TEXT NOT NULL,
	rule INTEGER NOT NULL,
	reason TEXT,
	similarity_score DOUBLE PRECISION,
	has_hallucination BOOLEAN,
	judge_confidence DOUBLE PRECISION,
	validation_error TEXT,
	report JSONB NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS evaluation_reports_verdict_idx ON evaluation_reports (overall_verdict);
`

const insertReport = `
INSERT INTO evaluation_reports
	(run_id, workflow, capability, overall_verdict, recommendation, rule, reason,
	 similarity_score, has_hallucination, judge_confidence, validation_error, report, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// ReportStore persists evaluation reports in PostgreSQL.
type ReportStore struct {
	db      *sql.DB
	timeout time.Duration
	logger  *zap.Logger
}

// OpenReportStore connects to dsn and creates the reports table.
func OpenReportStore(ctx context.Context, dsn string, logger *zap.Logger) (*ReportStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := &ReportStore{db: db, timeout: 5 * time.Second, logger: logging.OrNop(logger)}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("connected to postgres report store")
	return s, nil
}

func (s *ReportStore) createTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createReportsTable); err != nil {
		return fmt.Errorf("creating evaluation_reports: %w", err)
	}
	return nil
}

// Save inserts one report.
func (s *ReportStore) Save(ctx context.Context, r evaluation.EvaluationReport) error {
	args, err := reportArgs(r)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, insertReport, args...); err != nil {
		return fmt.Errorf("saving report %s: %w", r.RunID, err)
	}
	return nil
}

// Record saves r and logs any failure. It blocks; wrap it in an AsyncSink.
func (s *ReportStore) Record(r evaluation.EvaluationReport) {
	if err := s.Save(context.Background(), r); err != nil {
		s.logger.Error("failed to persist evaluation report", zap.String("run_id", r.RunID), zap.Error(err))
	}
}

// CountByVerdict returns how many reports carry each verdict.
func (s *ReportStore) CountByVerdict(ctx context.Context) (map[evaluation.Verdict]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT overall_verdict, COUNT(*) FROM evaluation_reports GROUP BY overall_verdict`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[evaluation.Verdict]int)
	for rows.Next() {
		var v string
		var n int
		if err := rows.Scan(&v, &n); err != nil {
			return nil, err
		}
		out[evaluation.Verdict(v)] = n
	}
	return out, rows.Err()
}

func (s *ReportStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ReportStore) Close() error {
	return s.db.Close()
}

func reportArgs(r evaluation.EvaluationReport) ([]any, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}

	var score, confidence sql.NullFloat64
	var hallucinated sql.NullBool
	if r.Similarity != nil {
		score = sql.NullFloat64{Float64: r.Similarity.Score, Valid: true}
	}
	if r.Hallucination != nil {
		hallucinated = sql.NullBool{Bool: r.Hallucination.HasHallucination, Valid: true}
		confidence = sql.NullFloat64{Float64: r.Hallucination.Confidence, Valid: true}
	}
	validationErr := sql.NullString{String: r.ValidationError, Valid: r.ValidationError != ""}

	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	return []any{
		r.RunID, r.Workflow, r.Capability, string(r.OverallVerdict), r.Recommendation, r.Rule, r.Reason,
		score, hallucinated, confidence, validationErr, string(doc), created,
	}, nil
}
