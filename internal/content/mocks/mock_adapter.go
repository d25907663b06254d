package mocks

import (
	"context"
	"io"

	"docintake/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Store(ctx context.Context, r io.Reader, meta model.ContentMetadata) (string, error) {
	args := m.Called(ctx, r, meta)
	return args.String(0), args.Error(1)
}
