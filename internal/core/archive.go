package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tracecore/internal/blob"
	"tracecore/pkg/domain"
)

const (
	traceReportPrefix = "trace-reports/"
	recallPlanPrefix  = "recall-plans/"
	archiveTimeLayout = "20060102T150405.000000000Z"
)

// ReportArchiver retains generated reports and plans as immutable JSON blobs
// for audit retention. Keys are timestamped; writing the same key twice fails
// because archived artifacts never change.
type ReportArchiver struct {
	store blob.Store
	nowFn func() time.Time
}

// NewReportArchiver wraps a blob store.
func NewReportArchiver(store blob.Store) *ReportArchiver {
	return &ReportArchiver{store: store, nowFn: time.Now}
}

// SetNowFunc overrides the timestamp source used for blob keys when a report
// carries no generation time.
func (a *ReportArchiver) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		a.nowFn = fn
	}
}

func (a *ReportArchiver) stamp(generatedAt time.Time) string {
	if generatedAt.IsZero() {
		generatedAt = a.nowFn()
	}
	return generatedAt.UTC().Format(archiveTimeLayout)
}

// ArchiveTraceReport stores the report under
// trace-reports/<starting batch>/<timestamp>.json.
func (a *ReportArchiver) ArchiveTraceReport(ctx context.Context, report domain.TraceReport) (blob.Info, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode trace report: %w", err)
	}
	key := fmt.Sprintf("%s%s/%s.json", traceReportPrefix, report.StartingBatch, a.stamp(report.GeneratedAt))
	return a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"starting_batch": report.StartingBatch,
			"direction":      string(report.Direction),
		},
	})
}

// ArchiveRecallPlan stores the plan under recall-plans/<timestamp>.json.
func (a *ReportArchiver) ArchiveRecallPlan(ctx context.Context, plan domain.RecallPlan) (blob.Info, error) {
	payload, err := json.Marshal(plan)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode recall plan: %w", err)
	}
	key := fmt.Sprintf("%s%s.json", recallPlanPrefix, a.stamp(plan.GeneratedAt))
	meta := map[string]string{"entries": fmt.Sprintf("%d", len(plan.Entries))}
	if len(plan.TriggerBatchIDs) > 0 {
		meta["trigger_batch"] = plan.TriggerBatchIDs[0]
	}
	return a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    meta,
	})
}

// ListTraceReports lists archived reports for a starting batch, oldest first.
func (a *ReportArchiver) ListTraceReports(ctx context.Context, startBatchID string) ([]blob.Info, error) {
	return a.store.List(ctx, traceReportPrefix+startBatchID+"/")
}

// ListRecallPlans lists archived recall plans, oldest first.
func (a *ReportArchiver) ListRecallPlans(ctx context.Context) ([]blob.Info, error) {
	return a.store.List(ctx, recallPlanPrefix)
}
