package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"crmapi/internal/model"
	"crmapi/internal/storage"
	"crmapi/internal/task"
)

const reportQuery = `query {
  customers { id }
  orders { id totalAmount }
}`

// ReportResult is what the report tasks store as their task result.
type ReportResult struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Data      *model.Report `json:"data"`
	Timestamp string        `json:"timestamp"`
	Archive   string        `json:"archive,omitempty"`
}

const reportRetryDelay = 60 * time.Second

// fetchReport asks the GraphQL endpoint first and falls back to querying the
// database directly.
func (j *Jobs) fetchReport(ctx context.Context) (*model.Report, error) {
	var data struct {
		Customers []struct {
			ID string `json:"id"`
		} `json:"customers"`
		Orders []struct {
			ID          string           `json:"id"`
			TotalAmount *decimal.Decimal `json:"totalAmount"`
		} `json:"orders"`
	}
	err := j.gql.Do(ctx, reportQuery, nil, &data)
	if err == nil {
		revenue := decimal.Zero
		for _, o := range data.Orders {
			if o.TotalAmount != nil {
				revenue = revenue.Add(*o.TotalAmount)
			}
		}
		return &model.Report{
			TotalCustomers: len(data.Customers),
			TotalOrders:    len(data.Orders),
			TotalRevenue:   revenue,
			GeneratedAt:    j.now().UTC(),
			Source:         "graphql",
		}, nil
	}

	j.logger.Warn("report_graphql_failed", "error", err.Error())
	r, err := j.reports.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func reportLine(ts string, r *model.Report) string {
	return fmt.Sprintf("%s - Report: %d customers, %d orders, $%s revenue.\n",
		ts, r.TotalCustomers, r.TotalOrders, r.TotalRevenue.StringFixed(2))
}

func reportDetail(ts string, r *model.Report) string {
	return fmt.Sprintf("%s - Detailed Report:\n"+
		"  Total Customers: %d\n"+
		"  Total Orders: %d\n"+
		"  Total Revenue: $%s\n"+
		"  Report Generated Successfully\n%s",
		ts, r.TotalCustomers, r.TotalOrders, r.TotalRevenue.StringFixed(2), rule)
}

func (j *Jobs) reportFailed(ts string, err error) *ReportResult {
	j.append(ReportLog, fmt.Sprintf("%s - ERROR generating report: %v\n", ts, err))
	j.logger.Error("report_failed", "error", err.Error())
	return &ReportResult{
		Message:   fmt.Sprintf("Report generation failed: %v", err),
		Timestamp: ts,
	}
}

// GenerateReport summarises customers, orders and revenue into the report
// log and archives the snapshot. Failures are reported in the result rather
// than failing the task.
func (j *Jobs) GenerateReport(ctx context.Context, req *task.Request) (any, error) {
	r, err := j.fetchReport(ctx)
	ts := j.clock().Format(reportStamp)
	if err != nil {
		return j.reportFailed(ts, err), nil
	}

	j.append(ReportLog, reportLine(ts, r))
	j.append(ReportLog, reportDetail(ts, r))

	res := &ReportResult{
		Success:   true,
		Message:   "Report generated successfully",
		Data:      r,
		Timestamp: ts,
	}
	key, err := j.reports.Archive(ctx, r)
	switch {
	case errors.Is(err, storage.ErrDisabled):
	case err != nil:
		j.logger.Warn("report_archive_failed", "error", err.Error())
	default:
		res.Archive = key
	}

	j.logger.Info("report_generated",
		"task_id", req.ID,
		"customers", r.TotalCustomers,
		"orders", r.TotalOrders,
		"revenue", r.TotalRevenue.StringFixed(2),
		"source", r.Source)
	return res, nil
}

// GenerateReportWithRetry writes only the summary line and asks for another
// attempt on failure until its retries run out.
func (j *Jobs) GenerateReportWithRetry(ctx context.Context, req *task.Request) (any, error) {
	r, err := j.fetchReport(ctx)
	ts := j.clock().Format(reportStamp)
	if err != nil {
		res := j.reportFailed(ts, err)
		if req.Retries < req.MaxRetries {
			return nil, task.Retry(err, reportRetryDelay)
		}
		return res, nil
	}

	j.append(ReportLog, reportLine(ts, r))
	return &ReportResult{
		Success:   true,
		Message:   "Report generated successfully",
		Data:      r,
		Timestamp: ts,
	}, nil
}
