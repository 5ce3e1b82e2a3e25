package supervisor

import (
	"context"
	"encoding/json"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/stretchr/testify/mock"
)

type StreamMock struct {
	mock.Mock
}

func (m *StreamMock) Connect(ctx context.Context, token entities.Token, params entities.ConnectionParameters) error {
	args := m.Called(ctx, token, params)
	return args.Error(0)
}

func (m *StreamMock) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *StreamMock) Emit(event string, arguments ...interface{}) error {
	args := m.Called(append([]interface{}{event}, arguments...)...)
	return args.Error(0)
}

func (m *StreamMock) Request(ctx context.Context, event, response string, arguments ...interface{}) (json.RawMessage, error) {
	args := m.Called(append([]interface{}{ctx, event, response}, arguments...)...)
	payload, _ := args.Get(0).(json.RawMessage)
	return payload, args.Error(1)
}

type RefresherMock struct {
	mock.Mock
}

func (m *RefresherMock) RefreshAndRepublish(ctx context.Context) (entities.Token, error) {
	args := m.Called(ctx)
	return args.Get(0).(entities.Token), args.Error(1)
}
