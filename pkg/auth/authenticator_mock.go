package auth

import (
	"context"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/stretchr/testify/mock"
)

type AuthenticatorMock struct {
	mock.Mock
}

func (m *AuthenticatorMock) Authenticate(ctx context.Context, credentials entities.Credentials) (entities.Token, error) {
	args := m.Called(ctx, credentials)
	return args.Get(0).(entities.Token), args.Error(1)
}

func (m *AuthenticatorMock) UpdateCredentials(credentials entities.Credentials) {
	m.Called(credentials)
}
