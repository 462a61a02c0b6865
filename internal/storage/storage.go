// Package storage is the S3-compatible object store used for report archives.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrDisabled is returned by the no-op store when no endpoint is configured.
	ErrDisabled = errors.New("object storage is not configured")
	ErrNotFound = errors.New("object not found")
)

// PutObjectOptions: Size -1 lets the backend stream an unknown length.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is safe for concurrent use.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// List returns objects under prefix, oldest first.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Disabled satisfies Storage and fails every call with ErrDisabled.
type Disabled struct{}

func (Disabled) Put(context.Context, string, io.Reader, PutObjectOptions) (ObjectInfo, error) {
	return ObjectInfo{}, ErrDisabled
}

func (Disabled) Get(context.Context, string) (io.ReadCloser, ObjectInfo, error) {
	return nil, ObjectInfo{}, ErrDisabled
}

func (Disabled) List(context.Context, string) ([]ObjectInfo, error) { return nil, ErrDisabled }

func (Disabled) Delete(context.Context, string) error { return ErrDisabled }

func (Disabled) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", ErrDisabled
}
