// Package missing finds required KPIs with no observation in a reporting
// period and follows up on them.
package missing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/notify"
	"github.com/sells-group/esg-hub/internal/store"
)

// SystemAssignee owns reminder tasks until someone picks them up.
const SystemAssignee = "00000000-0000-0000-0000-000000000000"

// Stores is the persistence the detector and reminders need.
type Stores interface {
	store.CatalogStore
	store.NormStore
	store.TaskStore
}

// Summary aggregates a detection run.
type Summary struct {
	TotalRequired int                    `json:"total_required"`
	TotalMissing  int                    `json:"total_missing"`
	ByCategory    map[model.Category]int `json:"by_category"`
	ByUrgency     map[model.Urgency]int  `json:"by_urgency"`
}

// Report is the outcome of a scan.
type Report struct {
	Period      string                  `json:"period"`
	MissingKPIs []model.MissingKPIAlert `json:"missing_kpis"`
	Summary     Summary                 `json:"summary"`
	Count       int                     `json:"count"`
	AlertSent   bool                    `json:"alert_sent"`
}

// Detector computes the missing set for a period.
type Detector struct {
	st Stores
}

// NewDetector returns a detector over st.
func NewDetector(st Stores) *Detector {
	return &Detector{st: st}
}

// Detect returns one alert per required KPI with no observation in period,
// in catalog order.
func (d *Detector) Detect(ctx context.Context, period string) ([]model.MissingKPIAlert, error) {
	alerts, _, err := d.detect(ctx, period)
	return alerts, err
}

func (d *Detector) detect(ctx context.Context, period string) ([]model.MissingKPIAlert, int, error) {
	if strings.TrimSpace(period) == "" {
		return nil, 0, eris.New("missing: period is required")
	}

	required, err := d.st.ListKPIs(ctx, true)
	if err != nil {
		return nil, 0, eris.Wrap(err, "missing: list required kpis")
	}
	reportedIDs, err := d.st.ReportedKPIIDs(ctx, period)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "missing: reported kpis for %s", period)
	}
	reported := make(map[string]bool, len(reportedIDs))
	for _, id := range reportedIDs {
		reported[id] = true
	}

	alerts := []model.MissingKPIAlert{}
	for _, kpi := range required {
		if reported[kpi.ID] {
			continue
		}
		last, err := d.st.LastReported(ctx, kpi.ID)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "missing: last reported %s", kpi.ID)
		}
		alerts = append(alerts, alertFor(kpi, last))
	}
	return alerts, len(required), nil
}

func alertFor(kpi model.KPI, last *time.Time) model.MissingKPIAlert {
	return model.MissingKPIAlert{
		KPIID:        kpi.ID,
		KPIName:      kpi.Name,
		Category:     kpi.Category,
		Urgency:      model.UrgencyFor(kpi.Category),
		LastReported: last,
	}
}

// Summarize counts alerts by category and urgency.
func Summarize(alerts []model.MissingKPIAlert, totalRequired int) Summary {
	s := Summary{
		TotalRequired: totalRequired,
		TotalMissing:  len(alerts),
		ByCategory:    make(map[model.Category]int),
		ByUrgency:     make(map[model.Urgency]int),
	}
	for _, a := range alerts {
		s.ByCategory[a.Category]++
		s.ByUrgency[a.Urgency]++
	}
	return s
}

// CurrentQuarter names the calendar quarter containing now, e.g. "2025-Q2".
func CurrentQuarter(now time.Time) string {
	return fmt.Sprintf("%d-Q%d", now.Year(), (int(now.Month())+2)/3)
}

// Service runs scans and reminders and posts their alerts.
type Service struct {
	st       Stores
	detector *Detector
	notifier notify.Notifier
}

// NewService wires the missing-KPI service.
func NewService(st Stores, notifier notify.Notifier) *Service {
	return &Service{st: st, detector: NewDetector(st), notifier: notifier}
}

// Scan detects missing KPIs for period. With send set and a non-empty
// result, the grouped alert is posted; a failed post does not fail the scan.
func (s *Service) Scan(ctx context.Context, period string, send bool) (*Report, error) {
	alerts, total, err := s.detector.detect(ctx, period)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Period:      period,
		MissingKPIs: alerts,
		Summary:     Summarize(alerts, total),
		Count:       len(alerts),
	}
	if send && len(alerts) > 0 {
		r.AlertSent = s.notifier.MissingKPIs(ctx, alerts, period)
	}

	zap.L().Info("missing: scan complete",
		zap.String("period", period),
		zap.Int("required", total),
		zap.Int("missing", len(alerts)),
		zap.Bool("alert_sent", r.AlertSent),
	)
	return r, nil
}

// RunScheduled scans the quarter containing now and always alerts. A failed
// scan is reported to the channel before it is returned.
func (s *Service) RunScheduled(ctx context.Context, now time.Time) (*Report, error) {
	period := CurrentQuarter(now)
	r, err := s.Scan(ctx, period, true)
	if err != nil {
		s.notifier.Message(ctx, fmt.Sprintf("❌ Missing KPI cron job failed: %v", err))
		return nil, eris.Wrapf(err, "missing: scheduled scan %s", period)
	}
	return r, nil
}

// Reminder is the outcome of Remind.
type Reminder struct {
	KPI      model.KPI           `json:"kpi"`
	Period   string              `json:"period"`
	Task     *model.WorkflowTask `json:"task,omitempty"`
	Notified bool                `json:"notified"`
}

// Remind records a pending review task for one KPI and period and posts a
// single-KPI alert. Failing to create the task is logged, not returned.
func (s *Service) Remind(ctx context.Context, kpiID, period string) (*Reminder, error) {
	if strings.TrimSpace(kpiID) == "" || strings.TrimSpace(period) == "" {
		return nil, eris.New("missing: kpi_id and period are required")
	}

	kpis, err := s.st.ListKPIs(ctx, false)
	if err != nil {
		return nil, eris.Wrap(err, "missing: list kpis")
	}
	kpi, ok := model.NewCatalog(kpis).Get(kpiID)
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "missing: kpi %s", kpiID)
	}

	r := &Reminder{KPI: kpi, Period: period}

	task, err := s.st.CreateTask(ctx, model.WorkflowTask{
		Type:        model.TaskTypeReview,
		Status:      model.TaskStatusPending,
		AssigneeID:  SystemAssignee,
		RecordID:    kpi.ID,
		Description: fmt.Sprintf("Missing KPI data reminder: %s for period %s", kpi.Name, period),
	})
	if err != nil {
		zap.L().Error("missing: create reminder task", zap.String("kpi_id", kpi.ID), zap.Error(err))
	} else {
		r.Task = task
	}

	r.Notified = s.notifier.MissingKPIs(ctx, []model.MissingKPIAlert{alertFor(kpi, nil)}, period)
	return r, nil
}
