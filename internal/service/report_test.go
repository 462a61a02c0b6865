package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crmapi/internal/model"
	repoMocks "crmapi/internal/repository/mocks"
	"crmapi/internal/storage"
	storageMocks "crmapi/internal/storage/mocks"
)

func TestReportService_Summary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		setupMocks func(c *repoMocks.MockCustomerRepository, o *repoMocks.MockOrderRepository)
		wantErrMsg string
	}{
		{
			name: "aggregates totals",
			setupMocks: func(c *repoMocks.MockCustomerRepository, o *repoMocks.MockOrderRepository) {
				c.On("Count", ctx).Return(3, nil)
				o.On("Count", ctx).Return(4, nil)
				o.On("SumRevenue", ctx).Return(decimal.RequireFromString("1500.25"), nil)
			},
		},
		{
			name: "customer count fails",
			setupMocks: func(c *repoMocks.MockCustomerRepository, o *repoMocks.MockOrderRepository) {
				c.On("Count", ctx).Return(0, errors.New("timeout"))
			},
			wantErrMsg: "count customers: timeout",
		},
		{
			name: "revenue fails",
			setupMocks: func(c *repoMocks.MockCustomerRepository, o *repoMocks.MockOrderRepository) {
				c.On("Count", ctx).Return(3, nil)
				o.On("Count", ctx).Return(4, nil)
				o.On("SumRevenue", ctx).Return(decimal.Zero, errors.New("timeout"))
			},
			wantErrMsg: "sum revenue: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := new(repoMocks.MockCustomerRepository)
			o := new(repoMocks.MockOrderRepository)
			tt.setupMocks(c, o)

			svc := NewReportService(c, o, nil).(*reportService)
			svc.now = func() time.Time { return now }

			r, err := svc.Summary(ctx)
			if tt.wantErrMsg != "" {
				assert.EqualError(t, err, tt.wantErrMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, r.TotalCustomers)
			assert.Equal(t, 4, r.TotalOrders)
			assert.Equal(t, "1500.25", r.TotalRevenue.StringFixed(2))
			assert.Equal(t, now, r.GeneratedAt)
			assert.Equal(t, "database", r.Source)
		})
	}
}

func TestReportService_Archive(t *testing.T) {
	ctx := context.Background()
	store := new(storageMocks.MockStorage)
	r := &model.Report{
		TotalCustomers: 2,
		TotalRevenue:   decimal.RequireFromString("10.50"),
		GeneratedAt:    time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC),
		Source:         "graphql",
	}

	store.On("Put", ctx, "reports/20261001T060000Z.json", mock.Anything, mock.MatchedBy(func(o storage.PutObjectOptions) bool {
		return o.ContentType == "application/json" && o.Metadata["source"] == "graphql" && o.Size > 0
	})).Return(func(_ context.Context, key string, body io.Reader, _ storage.PutObjectOptions) storage.ObjectInfo {
		var decoded map[string]any
		require.NoError(t, json.NewDecoder(body).Decode(&decoded))
		assert.EqualValues(t, 2, decoded["total_customers"])
		return storage.ObjectInfo{Key: key}
	}, nil)

	key, err := NewReportService(nil, nil, store).Archive(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "reports/20261001T060000Z.json", key)
	store.AssertExpectations(t)
}

func TestReportService_ArchiveDisabledStore(t *testing.T) {
	_, err := NewReportService(nil, nil, nil).Archive(context.Background(), &model.Report{})
	assert.ErrorIs(t, err, storage.ErrDisabled)
}

func TestReportService_OpenArchive(t *testing.T) {
	ctx := context.Background()
	store := new(storageMocks.MockStorage)
	store.On("Get", ctx, "reports/a.json").
		Return(io.NopCloser(strings.NewReader("{}")), storage.ObjectInfo{Key: "reports/a.json"}, nil)

	svc := NewReportService(nil, nil, store)

	rc, err := svc.OpenArchive(ctx, "reports/a.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "{}", string(body))

	_, err = svc.OpenArchive(ctx, "secrets/key.pem")
	assert.ErrorIs(t, err, ErrInvalidArchiveKey)

	_, err = svc.ArchiveURL(ctx, "../etc/passwd", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidArchiveKey)
	assert.NotErrorIs(t, err, ErrIDRequired)
}

func TestReportService_PruneArchives(t *testing.T) {
	ctx := context.Background()
	objs := []storage.ObjectInfo{{Key: "reports/1.json"}, {Key: "reports/2.json"}, {Key: "reports/3.json"}}

	tests := []struct {
		name        string
		keep        int
		setupMocks  func(m *storageMocks.MockStorage)
		wantRemoved int
		wantErr     bool
	}{
		{
			name: "deletes oldest beyond keep",
			keep: 1,
			setupMocks: func(m *storageMocks.MockStorage) {
				m.On("List", ctx, "reports/").Return(objs, nil)
				m.On("Delete", ctx, "reports/1.json").Return(nil)
				m.On("Delete", ctx, "reports/2.json").Return(nil)
			},
			wantRemoved: 2,
		},
		{
			name: "under the limit",
			keep: 5,
			setupMocks: func(m *storageMocks.MockStorage) {
				m.On("List", ctx, "reports/").Return(objs, nil)
			},
		},
		{
			name: "delete failure stops",
			keep: 0,
			setupMocks: func(m *storageMocks.MockStorage) {
				m.On("List", ctx, "reports/").Return(objs, nil)
				m.On("Delete", ctx, "reports/1.json").Return(nil)
				m.On("Delete", ctx, "reports/2.json").Return(errors.New("access denied"))
			},
			wantRemoved: 1,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(storageMocks.MockStorage)
			tt.setupMocks(m)

			n, err := NewReportService(nil, nil, m).PruneArchives(ctx, tt.keep)
			assert.Equal(t, tt.wantRemoved, n)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			m.AssertExpectations(t)
		})
	}
}
