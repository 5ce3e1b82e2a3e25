package bus

import (
	"encoding/json"
	"strings"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
)

// TokenMessage is the payload of the token distribution topic.
type TokenMessage struct {
	Token string `json:"TOKN"`
}

// MetricMessage is the payload of a normalized metric topic.
type MetricMessage struct {
	EventTime float64     `json:"eventtime"`
	Value     interface{} `json:"value"`
}

// ParseTokenMessage decodes a token topic payload.
func ParseTokenMessage(payload []byte) (entities.Token, error) {
	var message TokenMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return "", errors.Wrap(entities.ErrMalformedPayload, err.Error())
	}
	token := strings.TrimSpace(message.Token)
	if token == "" {
		return "", errors.Wrap(entities.ErrMalformedPayload, "empty TOKN")
	}
	return entities.Token(token), nil
}

func newMetricMessage(metric entities.NormalizedMetric) MetricMessage {
	return MetricMessage{
		EventTime: float64(metric.Timestamp.UnixNano()) / 1e9,
		Value:     metric.Value,
	}
}
