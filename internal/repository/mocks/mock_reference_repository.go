package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"refdata/internal/model"
	"refdata/internal/repository"
)

type MockReferenceRepository struct {
	mock.Mock
}

func (m *MockReferenceRepository) List(ctx context.Context, resource string, c repository.Criteria, pq repository.PageQuery) (*repository.PageResult[model.ReferenceItem], error) {
	args := m.Called(ctx, resource, c, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.ReferenceItem]), args.Error(1)
}

func (m *MockReferenceRepository) FindByID(ctx context.Context, resource, id string) (*model.ReferenceItem, error) {
	args := m.Called(ctx, resource, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReferenceItem), args.Error(1)
}

func (m *MockReferenceRepository) PrivateProperties(ctx context.Context, resource string) ([]string, error) {
	args := m.Called(ctx, resource)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
