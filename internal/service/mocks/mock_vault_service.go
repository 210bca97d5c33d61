package mocks

import (
	"context"
	"io"

	"securevault/internal/model"
	"securevault/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockVaultService struct {
	mock.Mock
}

var _ service.VaultService = (*MockVaultService)(nil)

func (m *MockVaultService) Upload(ctx context.Context, actor model.Identity, filename string, r io.Reader) (*model.UploadResult, error) {
	args := m.Called(ctx, actor, filename, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UploadResult), args.Error(1)
}

func (m *MockVaultService) Retrieve(ctx context.Context, actor model.Identity, fileID string) (*model.RetrievedFile, error) {
	args := m.Called(ctx, actor, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RetrievedFile), args.Error(1)
}

func (m *MockVaultService) List(ctx context.Context, actor model.Identity) ([]model.FileSummary, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FileSummary), args.Error(1)
}

func (m *MockVaultService) Delete(ctx context.Context, actor model.Identity, fileID string) error {
	args := m.Called(ctx, actor, fileID)
	return args.Error(0)
}

func (m *MockVaultService) AuditTrail(ctx context.Context, actor model.Identity, limit int) ([]model.AuditEntry, error) {
	args := m.Called(ctx, actor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditEntry), args.Error(1)
}
