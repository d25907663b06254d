package mocks

import (
	"context"

	"docintake/internal/credential"

	"github.com/stretchr/testify/mock"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Get(ctx context.Context) (credential.Credential, error) {
	args := m.Called(ctx)
	return args.Get(0).(credential.Credential), args.Error(1)
}

func (m *MockSource) Invalidate(c credential.Credential) {
	m.Called(c)
}
