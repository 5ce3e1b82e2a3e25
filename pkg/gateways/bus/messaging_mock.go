package bus

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MessagingMock struct {
	mock.Mock
}

func (m *MessagingMock) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MessagingMock) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MessagingMock) Publish(topic string, qos byte, retained bool, payload []byte) error {
	args := m.Called(topic, qos, retained, payload)
	return args.Error(0)
}

func (m *MessagingMock) Subscribe(topic string, qos byte, handler MessageHandler) error {
	args := m.Called(topic, qos, handler)
	return args.Error(0)
}
