package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"crmapi/internal/model"
	"crmapi/internal/repository"
	"crmapi/internal/storage"
)

const reportPrefix = "reports/"

// ReportService summarises CRM totals and manages archived report snapshots.
type ReportService interface {
	// Summary aggregates totals straight from the database.
	Summary(ctx context.Context) (*model.Report, error)

	// Archive stores r as JSON under reports/ and returns the object key.
	Archive(ctx context.Context, r *model.Report) (string, error)
	ListArchives(ctx context.Context) ([]storage.ObjectInfo, error)
	OpenArchive(ctx context.Context, key string) (io.ReadCloser, error)
	ArchiveURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// PruneArchives deletes all but the newest keep archives.
	PruneArchives(ctx context.Context, keep int) (int, error)
}

type reportService struct {
	customers repository.CustomerRepository
	orders    repository.OrderRepository
	store     storage.Storage
	now       func() time.Time
}

func NewReportService(customers repository.CustomerRepository, orders repository.OrderRepository, store storage.Storage) ReportService {
	if store == nil {
		store = storage.Disabled{}
	}
	return &reportService{
		customers: customers,
		orders:    orders,
		store:     store,
		now:       time.Now,
	}
}

func (s *reportService) Summary(ctx context.Context) (*model.Report, error) {
	customers, err := s.customers.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count customers: %w", err)
	}
	orders, err := s.orders.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	revenue, err := s.orders.SumRevenue(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	return &model.Report{
		TotalCustomers: customers,
		TotalOrders:    orders,
		TotalRevenue:   revenue,
		GeneratedAt:    s.now(),
		Source:         "database",
	}, nil
}

// ArchiveKey is the object key a report generated at t is stored under.
func ArchiveKey(t time.Time) string {
	return reportPrefix + t.UTC().Format("20060102T150405Z") + ".json"
}

func (s *reportService) Archive(ctx context.Context, r *model.Report) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	key := ArchiveKey(r.GeneratedAt)
	_, err = s.store.Put(ctx, key, bytes.NewReader(body), storage.PutObjectOptions{
		Size:        int64(len(body)),
		ContentType: "application/json",
		Metadata:    map[string]string{"source": r.Source},
	})
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	return key, nil
}

func (s *reportService) ListArchives(ctx context.Context) ([]storage.ObjectInfo, error) {
	return s.store.List(ctx, reportPrefix)
}

func (s *reportService) OpenArchive(ctx context.Context, key string) (io.ReadCloser, error) {
	if !strings.HasPrefix(key, reportPrefix) {
		return nil, ErrInvalidArchiveKey
	}
	rc, _, err := s.store.Get(ctx, key)
	return rc, err
}

func (s *reportService) ArchiveURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !strings.HasPrefix(key, reportPrefix) {
		return "", ErrInvalidArchiveKey
	}
	return s.store.PresignGet(ctx, key, expiry)
}

func (s *reportService) PruneArchives(ctx context.Context, keep int) (int, error) {
	objs, err := s.store.List(ctx, reportPrefix)
	if err != nil {
		return 0, err
	}
	if len(objs) <= keep {
		return 0, nil
	}
	removed := 0
	for _, o := range objs[:len(objs)-keep] {
		if err := s.store.Delete(ctx, o.Key); err != nil {
			return removed, fmt.Errorf("delete %s: %w", o.Key, err)
		}
		removed++
	}
	return removed, nil
}
