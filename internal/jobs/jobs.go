// Package jobs holds the CRM's background work: tasks run by the worker and
// the crontab-style jobs run by the scheduler. Every job leaves a line in a
// plain-text log under the configured log directory.
package jobs

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"crmapi/internal/service"
)

const (
	heartbeatStamp = "02/01/2006-15:04:05"
	reportStamp    = "2006-01-02 15:04:05"
)

var rule = strings.Repeat("-", 50) + "\n"

// GraphQL is the slice of the GraphQL client jobs need.
type GraphQL interface {
	Do(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error
}

type Deps struct {
	Logs      *LogDir
	GraphQL   GraphQL
	Reports   service.ReportService
	Customers service.CustomerService
	Logger    *slog.Logger
	Location  *time.Location
}

type Jobs struct {
	logs      *LogDir
	gql       GraphQL
	reports   service.ReportService
	customers service.CustomerService
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

func New(d Deps) *Jobs {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Jobs{
		logs:      d.Logs,
		gql:       d.GraphQL,
		reports:   d.Reports,
		customers: d.Customers,
		logger:    logger.With("component", "jobs"),
		loc:       loc,
		now:       time.Now,
	}
}

func (j *Jobs) clock() time.Time {
	return j.now().In(j.loc)
}

// append writes to a job log; failures are logged, never returned, so the
// job's own outcome stays the reported one.
func (j *Jobs) append(name, text string) {
	if err := j.logs.Append(name, text); err != nil {
		j.logger.Error("job_log_write_failed", "file", name, "error", err.Error())
	}
}
