package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/notify"
	"github.com/sells-group/esg-hub/internal/quality"
)

// ErrInvalidRequest marks uploads rejected before anything is stored.
var ErrInvalidRequest = errors.New("invalid ingest request")

// Request is one upload of already-decoded rows.
type Request struct {
	DataSourceID string      `json:"data_source_id"`
	Filename     string      `json:"filename"`
	FileURI      string      `json:"file_uri,omitempty"`
	Rows         []model.Row `json:"rows"`
}

// Result reports what happened to an upload. The raw record exists even
// when materialization failed, so it can be retried.
type Result struct {
	RawRecordID string             `json:"raw_record_id"`
	Materialize *MaterializeResult `json:"materialize,omitempty"`
	Quality     *quality.Report    `json:"quality,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// QualityAnalyzer scores a batch.
type QualityAnalyzer interface {
	Analyze(ctx context.Context, rows []model.Row) (*quality.Report, error)
}

// ServiceConfig holds ingestion limits.
type ServiceConfig struct {
	MaxRows           int
	QualityAlertBelow int
}

// Service stores uploads and runs them through materialization, quality
// analysis and notification.
type Service struct {
	st       Stores
	mat      *Materializer
	analyzer QualityAnalyzer
	notifier notify.Notifier
	cfg      ServiceConfig
}

// NewService wires the ingestion pipeline. analyzer may be nil.
func NewService(st Stores, mat *Materializer, analyzer QualityAnalyzer, notifier notify.Notifier, cfg ServiceConfig) *Service {
	return &Service{st: st, mat: mat, analyzer: analyzer, notifier: notifier, cfg: cfg}
}

// Validate checks a request before anything is stored.
func (s *Service) Validate(req Request) error {
	var errs []string
	if strings.TrimSpace(req.DataSourceID) == "" {
		errs = append(errs, "data_source_id is required")
	}
	if len(req.Rows) == 0 {
		errs = append(errs, "rows must not be empty")
	}
	if s.cfg.MaxRows > 0 && len(req.Rows) > s.cfg.MaxRows {
		errs = append(errs, "too many rows")
	}
	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalidRequest, "ingest: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Ingest creates the raw record and materializes it. Only a failure to
// store the raw record is returned as an error.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	rec := &model.RawRecord{
		DataSourceID:     req.DataSourceID,
		FileURI:          req.FileURI,
		Rows:             req.Rows,
		OriginalFilename: req.Filename,
		UploadedAt:       time.Now().UTC(),
	}
	if err := s.st.CreateRawRecord(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "ingest: create raw record")
	}

	res := &Result{RawRecordID: rec.ID}

	mres, err := s.mat.Materialize(ctx, rec.ID, MaterializeOptions{})
	if err != nil {
		zap.L().Error("ingest: materialization failed", zap.String("raw_record_id", rec.ID), zap.Error(err))
		res.Error = err.Error()
		return res, nil
	}
	res.Materialize = mres

	res.Quality = s.analyze(ctx, rec.ID, req.Rows)

	var score *int
	if res.Quality != nil {
		score = &res.Quality.QualityScore
	}
	s.notifier.ProcessingComplete(ctx, rec.ID, mres.Emitted, score)
	if res.Quality.Below(s.cfg.QualityAlertBelow) {
		s.notifier.DataQuality(ctx, rec.ID, res.Quality.QualityScore, res.Quality.Issues)
	}
	return res, nil
}

// analyze is best effort; failures are logged and yield no report.
func (s *Service) analyze(ctx context.Context, recordID string, rows []model.Row) *quality.Report {
	if s.analyzer == nil {
		return nil
	}
	rep, err := s.analyzer.Analyze(ctx, rows)
	if err != nil {
		zap.L().Warn("ingest: quality analysis failed", zap.String("raw_record_id", recordID), zap.Error(err))
		return nil
	}
	return rep
}
