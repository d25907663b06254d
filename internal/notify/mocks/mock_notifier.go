package mocks

import (
	"context"

	"docintake/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n model.Notification) (model.Ack, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(model.Ack), args.Error(1)
}
