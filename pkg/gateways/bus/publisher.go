package bus

import (
	"encoding/json"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
)

const (
	tokenQoS  = ExactlyOnce
	metricQoS = AtLeastOnce
	bulkQoS   = AtMostOnce

	retainToken  = true
	retainMetric = true
	retainBulk   = false
)

type Publisher interface {
	PublishToken(token entities.Token) error
	PublishMetric(metric entities.NormalizedMetric) error
	PublishBulk(metric entities.NormalizedMetric) error
}

type msgPublisher struct {
	messaging Messaging
	topics    entities.Topics
}

func NewMsgPublisher(messaging Messaging, topics entities.Topics) Publisher {
	return &msgPublisher{messaging: messaging, topics: topics}
}

func (mp *msgPublisher) PublishToken(token entities.Token) error {
	body, err := json.Marshal(TokenMessage{Token: string(token)})
	if err != nil {
		return errors.Wrap(err, "encode token message")
	}
	return mp.messaging.Publish(mp.topics.Token(), tokenQoS, retainToken, body)
}

func (mp *msgPublisher) PublishMetric(metric entities.NormalizedMetric) error {
	body, err := json.Marshal(newMetricMessage(metric))
	if err != nil {
		return errors.Wrapf(err, "encode metric %s", metric.Name)
	}
	return mp.messaging.Publish(mp.topics.GUI(metric.Name), metricQoS, retainMetric, body)
}

func (mp *msgPublisher) PublishBulk(metric entities.NormalizedMetric) error {
	return mp.messaging.Publish(mp.topics.Bulk(metric.Name), bulkQoS, retainBulk, metric.Raw)
}
