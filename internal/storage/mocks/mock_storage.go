package mocks

import (
	"context"
	"io"

	"securevault/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockObjectStore struct {
	mock.Mock
}

var _ storage.ObjectStore = (*MockObjectStore)(nil)

func (m *MockObjectStore) EnsureNamespace(ctx context.Context, ownerID string) (string, error) {
	args := m.Called(ctx, ownerID)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Put(ctx context.Context, namespace, logicalName string, r io.Reader) (string, error) {
	args := m.Called(ctx, namespace, logicalName, r)
	if f, ok := args.Get(0).(func(context.Context, string, string, io.Reader) string); ok {
		return f(ctx, namespace, logicalName, r), args.Error(1)
	}
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Get(ctx context.Context, ref string) ([]byte, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockObjectStore) Remove(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockObjectStore) Kind() string {
	return "mock"
}
