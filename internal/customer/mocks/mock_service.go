package mocks

import (
	"context"

	"docintake/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Lookup(ctx context.Context, customerID string) (*model.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, customerID string) (string, bool, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockCache) Set(ctx context.Context, customerID, name string) error {
	args := m.Called(ctx, customerID, name)
	return args.Error(0)
}
