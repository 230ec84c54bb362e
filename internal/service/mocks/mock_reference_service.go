package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"refdata/internal/service"
)

type MockReferenceService struct {
	mock.Mock
}

func (m *MockReferenceService) List(ctx context.Context, resource string, q service.ListQuery, bypassCache bool) (*service.ListResult, error) {
	args := m.Called(ctx, resource, q, bypassCache)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult), args.Error(1)
}

func (m *MockReferenceService) Get(ctx context.Context, resource, guid string, bypassCache bool) (*service.ItemResult, error) {
	args := m.Called(ctx, resource, guid, bypassCache)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ItemResult), args.Error(1)
}

func (m *MockReferenceService) Invalidate(ctx context.Context, resource string) error {
	args := m.Called(ctx, resource)
	return args.Error(0)
}

type MockSnapshotService struct {
	mock.Mock
}

func (m *MockSnapshotService) Publish(ctx context.Context, resource string) (*service.Snapshot, error) {
	args := m.Called(ctx, resource)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Snapshot), args.Error(1)
}
