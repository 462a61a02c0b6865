package jobs

import (
	"context"
	"errors"
	"fmt"

	"crmapi/internal/storage"
	"crmapi/internal/task"
)

// Registered task names.
const (
	TaskGenerateReport          = "generate_crm_report"
	TaskGenerateReportWithRetry = "generate_crm_report_with_retry"
	TaskTestCelery              = "test_celery_task"
	TaskDebug                   = "debug_task"
	TaskCleanupOldReports       = "cleanup_old_reports"
)

const (
	reportLogKeep  = 500
	archiveKeepDef = 52
)

// Register adds every task handler to reg.
func (j *Jobs) Register(reg *task.Registry) error {
	defs := []task.Definition{
		{Name: TaskGenerateReport, Handler: j.GenerateReport},
		{Name: TaskGenerateReportWithRetry, MaxRetries: 3, RetryDelay: reportRetryDelay, Handler: j.GenerateReportWithRetry},
		{Name: TaskTestCelery, Handler: j.TestTask},
		{Name: TaskDebug, Handler: j.DebugTask},
		{Name: TaskCleanupOldReports, Handler: j.CleanupOldReports},
	}
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// TestTask proves a worker is consuming: it appends one line to the test log.
func (j *Jobs) TestTask(ctx context.Context, req *task.Request) (any, error) {
	msg := "Celery test task executed successfully at " + j.clock().Format(reportStamp)
	j.append(CeleryTestLog, msg+"\n")
	j.logger.Info("test_task_executed", "task_id", req.ID)
	return msg, nil
}

func (j *Jobs) DebugTask(ctx context.Context, req *task.Request) (any, error) {
	log := req.Logger
	if log == nil {
		log = j.logger
	}
	log.Info("debug_task",
		"request_id", req.ID,
		"task", req.Task,
		"queue", req.Queue,
		"retries", req.Retries,
		"args", string(req.Args))
	return "Celery is working!", nil
}

type cleanupArgs struct {
	KeepArchives int `json:"keep_archives"`
}

// CleanupResult is the task result of CleanupOldReports.
type CleanupResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	LinesBefore    int    `json:"lines_before"`
	LinesAfter     int    `json:"lines_after"`
	ArchivesPruned int    `json:"archives_pruned"`
}

// CleanupOldReports trims the report log to its last 500 lines and prunes
// archived report snapshots beyond keep_archives (default 52).
func (j *Jobs) CleanupOldReports(ctx context.Context, req *task.Request) (any, error) {
	args := cleanupArgs{KeepArchives: archiveKeepDef}
	if err := req.Bind(&args); err != nil {
		return nil, err
	}

	before, after, err := j.logs.Trim(ReportLog, reportLogKeep)
	if err != nil {
		return &CleanupResult{Message: fmt.Sprintf("Failed to cleanup reports: %v", err)}, nil
	}

	res := &CleanupResult{Success: true, LinesBefore: before, LinesAfter: after}
	switch {
	case before == 0:
		res.Message = "No log file to clean"
	case before > reportLogKeep:
		res.Message = fmt.Sprintf("Cleaned up report log, kept last %d lines (removed %d lines)", reportLogKeep, before-reportLogKeep)
	default:
		res.Message = fmt.Sprintf("Report log is manageable size (%d lines), no cleanup needed", before)
	}

	if args.KeepArchives > 0 {
		n, err := j.reports.PruneArchives(ctx, args.KeepArchives)
		if err != nil && !errors.Is(err, storage.ErrDisabled) {
			j.logger.Warn("report_archive_prune_failed", "error", err.Error())
		}
		res.ArchivesPruned = n
	}
	return res, nil
}
