package mocks

import (
	"context"

	"docintake/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockDispatchService struct {
	mock.Mock
}

func (m *MockDispatchService) Submit(ctx context.Context, req model.UploadRequest) (*model.DispatchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DispatchResult), args.Error(1)
}
