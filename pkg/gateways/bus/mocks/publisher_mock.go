package mocks

import (
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/stretchr/testify/mock"
)

type PublisherMock struct {
	mock.Mock
}

func (p *PublisherMock) PublishToken(token entities.Token) error {
	args := p.Called(token)
	return args.Error(0)
}

func (p *PublisherMock) PublishMetric(metric entities.NormalizedMetric) error {
	args := p.Called(metric)
	return args.Error(0)
}

func (p *PublisherMock) PublishBulk(metric entities.NormalizedMetric) error {
	args := p.Called(metric)
	return args.Error(0)
}
