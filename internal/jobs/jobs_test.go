package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crmapi/internal/gql"
	"crmapi/internal/model"
	"crmapi/internal/service/mocks"
	"crmapi/internal/storage"
	"crmapi/internal/task"
)

var fixedNow = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

type gqlCall struct {
	query string
	vars  map[string]interface{}
}

// fakeGraphQL answers every query with data or err.
type fakeGraphQL struct {
	mu    sync.Mutex
	data  string
	err   error
	calls []gqlCall
}

func (f *fakeGraphQL) Do(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, gqlCall{query: query, vars: vars})
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if out == nil || f.data == "" {
		return nil
	}
	return json.Unmarshal([]byte(f.data), out)
}

type fixture struct {
	jobs      *Jobs
	logs      *LogDir
	reports   *mocks.MockReportService
	customers *mocks.MockCustomerService
}

func newFixture(t *testing.T, g GraphQL) fixture {
	t.Helper()
	f := fixture{
		logs:      NewLogDir(t.TempDir()),
		reports:   new(mocks.MockReportService),
		customers: new(mocks.MockCustomerService),
	}
	f.jobs = New(Deps{
		Logs:      f.logs,
		GraphQL:   g,
		Reports:   f.reports,
		Customers: f.customers,
		Logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	f.jobs.now = func() time.Time { return fixedNow }
	return f
}

func (f fixture) read(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(f.logs.Path(name))
	require.NoError(t, err)
	return string(b)
}

func lines(n int, prefix string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%s %d\n", prefix, i)
	}
	return b.String()
}

func TestHeartbeat(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		closed  bool
		want    string
	}{
		{
			name: "responsive",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":{"hello":"Hello, CRM GraphQL!"}}`))
			},
			want: "19/10/2026-08:30:00 CRM is alive - GraphQL endpoint responsive\n",
		},
		{
			name: "errors",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"errors":[{"message":"Cannot query field"}]}`))
			},
			want: "19/10/2026-08:30:00 CRM is alive - GraphQL endpoint has errors\n",
		},
		{
			name: "not responding",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			want: "19/10/2026-08:30:00 CRM is alive - GraphQL endpoint not responding\n",
		},
		{
			name:    "unreachable",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			closed:  true,
			want:    "19/10/2026-08:30:00 CRM is alive - GraphQL check failed: graphql transport error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			if tt.closed {
				srv.Close()
			} else {
				defer srv.Close()
			}
			f := newFixture(t, gql.NewClient(srv.URL, time.Second))

			require.NoError(t, f.jobs.Heartbeat(context.Background()))
			got := f.read(t, HeartbeatLog)
			assert.True(t, strings.HasPrefix(got, tt.want), got)
			assert.True(t, strings.HasSuffix(got, "\n"))
		})
	}
}

func TestHeartbeat_Appends(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{})

	require.NoError(t, f.jobs.Heartbeat(context.Background()))
	require.NoError(t, f.jobs.Heartbeat(context.Background()))
	assert.Equal(t, 2, strings.Count(f.read(t, HeartbeatLog), "CRM is alive"))
}

func TestUpdateLowStock(t *testing.T) {
	g := &fakeGraphQL{data: `{"updateLowStockProducts":{
		"updatedProducts":[{"id":"1","name":"Laptop","stock":15},{"id":"4","name":"Mouse","stock":12}],
		"message":"Successfully updated 2 low-stock products","success":true,"count":2}}`}
	f := newFixture(t, g)

	require.NoError(t, f.jobs.UpdateLowStock(context.Background()))

	want := "19/10/2026-08:30:00 Low Stock Update Results:\n" +
		"Success: true\n" +
		"Message: Successfully updated 2 low-stock products\n" +
		"Products Updated: 2\n" +
		"Updated Products:\n" +
		"  - ID: 1, Name: Laptop, New Stock: 15\n" +
		"  - ID: 4, Name: Mouse, New Stock: 12\n" +
		strings.Repeat("-", 50) + "\n"
	assert.Equal(t, want, f.read(t, LowStockLog))
	require.Len(t, g.calls, 1)
	assert.Contains(t, g.calls[0].query, "updateLowStockProducts")
}

func TestUpdateLowStock_NothingUpdated(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{data: `{"updateLowStockProducts":{"updatedProducts":[],"message":"No low-stock products found","success":true,"count":0}}`})

	require.NoError(t, f.jobs.UpdateLowStock(context.Background()))
	assert.Contains(t, f.read(t, LowStockLog), "Products Updated: 0\nNo products were updated.\n")
}

func TestUpdateLowStock_Errors(t *testing.T) {
	tests := []struct {
		name string
		g    *fakeGraphQL
		want string
	}{
		{
			name: "network",
			g:    &fakeGraphQL{err: fmt.Errorf("%w: connection refused", gql.ErrTransport)},
			want: "ERROR - Network error during low stock update: graphql transport error: connection refused",
		},
		{
			name: "bad json",
			g:    &fakeGraphQL{err: fmt.Errorf("%w: invalid character", gql.ErrDecode)},
			want: "ERROR - Invalid JSON response during low stock update",
		},
		{
			name: "graphql errors",
			g:    &fakeGraphQL{err: &gql.ResponseError{Messages: []string{"boom"}}},
			want: "ERROR - Unexpected error during low stock update: graphql errors: boom",
		},
		{
			name: "empty result",
			g:    &fakeGraphQL{data: `{}`},
			want: "ERROR - Unexpected error during low stock update: no mutation result returned",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.g)

			assert.Error(t, f.jobs.UpdateLowStock(context.Background()))
			got := f.read(t, LowStockLog)
			assert.True(t, strings.HasPrefix(got, "19/10/2026-08:30:00 "+tt.want), got)
			assert.True(t, strings.HasSuffix(got, strings.Repeat("-", 50)+"\n"))
		})
	}
}

const reportData = `{"customers":[{"id":"1"},{"id":"2"},{"id":"3"}],
	"orders":[{"id":"1","totalAmount":"1029.98"},{"id":"2","totalAmount":"50.00"},{"id":"3","totalAmount":null}]}`

func TestGenerateReport_GraphQL(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{data: reportData})
	f.reports.On("Archive", mock.Anything, mock.MatchedBy(func(r *model.Report) bool {
		return r.Source == "graphql" && r.TotalOrders == 3
	})).Return("reports/20261019T083000Z.json", nil)

	out, err := f.jobs.GenerateReport(context.Background(), &task.Request{ID: "t1"})
	require.NoError(t, err)

	res := out.(*ReportResult)
	assert.True(t, res.Success)
	assert.Equal(t, "Report generated successfully", res.Message)
	assert.Equal(t, "2026-10-19 08:30:00", res.Timestamp)
	assert.Equal(t, "reports/20261019T083000Z.json", res.Archive)
	assert.Equal(t, 3, res.Data.TotalCustomers)
	assert.True(t, decimal.RequireFromString("1079.98").Equal(res.Data.TotalRevenue))

	log := f.read(t, ReportLog)
	assert.True(t, strings.HasPrefix(log, "2026-10-19 08:30:00 - Report: 3 customers, 3 orders, $1079.98 revenue.\n"))
	assert.Contains(t, log, "2026-10-19 08:30:00 - Detailed Report:\n  Total Customers: 3\n  Total Orders: 3\n  Total Revenue: $1079.98\n  Report Generated Successfully\n")
	f.reports.AssertNotCalled(t, "Summary", mock.Anything)
}

func TestGenerateReport_DatabaseFallback(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{err: &gql.HTTPStatusError{StatusCode: 502}})
	f.reports.On("Summary", mock.Anything).Return(&model.Report{
		TotalCustomers: 5, TotalOrders: 2, TotalRevenue: decimal.RequireFromString("1275.97"), Source: "database",
	}, nil)
	f.reports.On("Archive", mock.Anything, mock.Anything).Return("", storage.ErrDisabled)

	out, err := f.jobs.GenerateReport(context.Background(), &task.Request{ID: "t2"})
	require.NoError(t, err)

	res := out.(*ReportResult)
	assert.True(t, res.Success)
	assert.Empty(t, res.Archive)
	assert.Equal(t, "database", res.Data.Source)
	assert.Contains(t, f.read(t, ReportLog), "- Report: 5 customers, 2 orders, $1275.97 revenue.\n")
}

func TestGenerateReport_Failure(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{err: gql.ErrTransport})
	f.reports.On("Summary", mock.Anything).Return(nil, errors.New("db down"))

	out, err := f.jobs.GenerateReport(context.Background(), &task.Request{ID: "t3"})
	require.NoError(t, err)

	res := out.(*ReportResult)
	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Equal(t, "Report generation failed: db down", res.Message)
	assert.Equal(t, "2026-10-19 08:30:00 - ERROR generating report: db down\n", f.read(t, ReportLog))
	f.reports.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
}

func TestGenerateReportWithRetry(t *testing.T) {
	t.Run("success writes summary line only", func(t *testing.T) {
		f := newFixture(t, &fakeGraphQL{data: reportData})

		out, err := f.jobs.GenerateReportWithRetry(context.Background(), &task.Request{MaxRetries: 3})
		require.NoError(t, err)
		assert.True(t, out.(*ReportResult).Success)
		assert.Equal(t, "2026-10-19 08:30:00 - Report: 3 customers, 3 orders, $1079.98 revenue.\n", f.read(t, ReportLog))
	})

	t.Run("asks for retry while retries remain", func(t *testing.T) {
		f := newFixture(t, &fakeGraphQL{err: gql.ErrTransport})
		f.reports.On("Summary", mock.Anything).Return(nil, errors.New("db down"))

		out, err := f.jobs.GenerateReportWithRetry(context.Background(), &task.Request{Retries: 1, MaxRetries: 3})
		assert.Nil(t, out)
		var re *task.RetryError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, 60*time.Second, re.Countdown)
		assert.Contains(t, f.read(t, ReportLog), "ERROR generating report: db down")
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		f := newFixture(t, &fakeGraphQL{err: gql.ErrTransport})
		f.reports.On("Summary", mock.Anything).Return(nil, errors.New("db down"))

		out, err := f.jobs.GenerateReportWithRetry(context.Background(), &task.Request{Retries: 3, MaxRetries: 3})
		require.NoError(t, err)
		assert.False(t, out.(*ReportResult).Success)
	})
}

func TestTestTask(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{})

	out, err := f.jobs.TestTask(context.Background(), &task.Request{ID: "t4"})
	require.NoError(t, err)
	assert.Equal(t, "Celery test task executed successfully at 2026-10-19 08:30:00", out)
	assert.Equal(t, "Celery test task executed successfully at 2026-10-19 08:30:00\n", f.read(t, CeleryTestLog))
}

func TestDebugTask(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{})

	out, err := f.jobs.DebugTask(context.Background(), &task.Request{ID: "t5", Task: TaskDebug})
	require.NoError(t, err)
	assert.Equal(t, "Celery is working!", out)
}

func TestCleanupOldReports(t *testing.T) {
	t.Run("trims and prunes", func(t *testing.T) {
		f := newFixture(t, &fakeGraphQL{})
		require.NoError(t, f.logs.Append(ReportLog, lines(510, "report")))
		f.reports.On("PruneArchives", mock.Anything, 52).Return(2, nil)

		out, err := f.jobs.CleanupOldReports(context.Background(), &task.Request{})
		require.NoError(t, err)

		res := out.(*CleanupResult)
		assert.Equal(t, &CleanupResult{
			Success:        true,
			Message:        "Cleaned up report log, kept last 500 lines (removed 10 lines)",
			LinesBefore:    510,
			LinesAfter:     500,
			ArchivesPruned: 2,
		}, res)
		assert.True(t, strings.HasPrefix(f.read(t, ReportLog), "report 11\n"))
	})

	t.Run("small log untouched", func(t *testing.T) {
		f := newFixture(t, &fakeGraphQL{})
		require.NoError(t, f.logs.Append(ReportLog, lines(3, "report")))

		out, err := f.jobs.CleanupOldReports(context.Background(), &task.Request{Args: json.RawMessage(`{"keep_archives":0}`)})
		require.NoError(t, err)
		assert.Equal(t, "Report log is manageable size (3 lines), no cleanup needed", out.(*CleanupResult).Message)
		f.reports.AssertNotCalled(t, "PruneArchives", mock.Anything, mock.Anything)
	})

	t.Run("no log file", func(t *testing.T) {
		f := newFixture(t, &fakeGraphQL{})
		f.reports.On("PruneArchives", mock.Anything, 52).Return(0, storage.ErrDisabled)

		out, err := f.jobs.CleanupOldReports(context.Background(), &task.Request{})
		require.NoError(t, err)
		res := out.(*CleanupResult)
		assert.True(t, res.Success)
		assert.Equal(t, "No log file to clean", res.Message)
	})

	t.Run("bad args", func(t *testing.T) {
		f := newFixture(t, &fakeGraphQL{})

		_, err := f.jobs.CleanupOldReports(context.Background(), &task.Request{Task: TaskCleanupOldReports, Args: json.RawMessage(`"nope"`)})
		assert.ErrorContains(t, err, "decode args for cleanup_old_reports")
	})
}

func TestSendOrderReminders(t *testing.T) {
	g := &fakeGraphQL{data: `{"filterOrders":[
		{"id":"1","customer":{"email":"alice@example.com"}},
		{"id":"2","customer":{"email":"bob@example.com"}}]}`}
	f := newFixture(t, g)

	require.NoError(t, f.jobs.SendOrderReminders(context.Background()))

	assert.Equal(t,
		"2026-10-19 08:30:00 Order ID: 1, Customer Email: alice@example.com\n"+
			"2026-10-19 08:30:00 Order ID: 2, Customer Email: bob@example.com\n",
		f.read(t, OrderRemindersLog))
	require.Len(t, g.calls, 1)
	assert.Equal(t, map[string]interface{}{"since": "2026-10-12T08:30:00Z"}, g.calls[0].vars)
}

func TestSendOrderReminders_QueryFails(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{err: gql.ErrTransport})

	assert.ErrorIs(t, f.jobs.SendOrderReminders(context.Background()), gql.ErrTransport)
	assert.Contains(t, f.read(t, OrderRemindersLog), "ERROR - Order reminder query failed")
}

func TestCleanInactiveCustomers(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{})
	f.customers.On("PurgeInactive", mock.Anything, fixedNow.Add(-365*24*time.Hour)).Return(int64(3), nil)

	require.NoError(t, f.jobs.CleanInactiveCustomers(context.Background()))
	assert.Equal(t, "2026-10-19 08:30:00 Deleted 3 inactive customers\n", f.read(t, CustomerCleanupLog))
}

func TestCleanInactiveCustomers_Error(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{})
	f.customers.On("PurgeInactive", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

	assert.Error(t, f.jobs.CleanInactiveCustomers(context.Background()))
	assert.Equal(t, "2026-10-19 08:30:00 ERROR - Customer cleanup failed: db down\n", f.read(t, CustomerCleanupLog))
}

func TestCleanupOldLogs(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{})
	require.NoError(t, f.logs.Append(HeartbeatLog, lines(1005, "beat")))
	require.NoError(t, f.logs.Append(LowStockLog, lines(10, "stock")))

	require.NoError(t, f.jobs.CleanupOldLogs(context.Background()))

	beats := f.read(t, HeartbeatLog)
	assert.Equal(t, 1000, strings.Count(beats, "\n"))
	assert.True(t, strings.HasPrefix(beats, "beat 6\n"))
	assert.Equal(t, lines(10, "stock"), f.read(t, LowStockLog))
}

func TestRegister(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{})
	reg := task.NewRegistry()

	require.NoError(t, f.jobs.Register(reg))
	assert.Equal(t, []string{
		TaskCleanupOldReports, TaskDebug, TaskGenerateReport, TaskGenerateReportWithRetry, TaskTestCelery,
	}, reg.Names())

	def, ok := reg.Lookup(TaskGenerateReportWithRetry)
	require.True(t, ok)
	assert.Equal(t, task.QueueDefault, def.Queue)

	reportDef, ok := reg.Lookup(TaskGenerateReport)
	require.True(t, ok)
	assert.Equal(t, task.QueueReports, reportDef.Queue)
	assert.Equal(t, 3, def.MaxRetries)
	assert.Equal(t, time.Minute, def.RetryDelay)

	def, _ = reg.Lookup(TaskTestCelery)
	assert.Equal(t, task.QueueDefault, def.Queue)

	assert.ErrorContains(t, f.jobs.Register(reg), "already registered")
}

func TestInline(t *testing.T) {
	f := newFixture(t, &fakeGraphQL{})
	jobs := f.jobs.Inline()
	for _, name := range []string{JobHeartbeat, JobLowStock, JobOrderReminders, JobCleanInactive, JobCleanupLogs} {
		assert.NotNil(t, jobs[name], name)
	}
}
