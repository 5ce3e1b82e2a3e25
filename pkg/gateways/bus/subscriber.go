package bus

import (
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/sirupsen/logrus"
)

type Subscriber interface {
	SubscribeToCredentials(handler func(field entities.CredentialField, payload []byte)) error
	SubscribeToToken(handler func(token entities.Token)) error
}

type msgSubscriber struct {
	messaging Messaging
	topics    entities.Topics
	log       *logrus.Entry
}

func NewMsgSubscriber(messaging Messaging, topics entities.Topics, log *logrus.Entry) Subscriber {
	return &msgSubscriber{messaging: messaging, topics: topics, log: log}
}

func (ms *msgSubscriber) SubscribeToCredentials(handler func(field entities.CredentialField, payload []byte)) error {
	var err error
	subscribe := func(field entities.CredentialField) {
		if err != nil {
			return
		}
		err = ms.messaging.Subscribe(ms.topics.Credential(field), AtLeastOnce, func(msg InMsg) {
			handler(field, msg.Payload)
		})
	}

	for _, field := range entities.AllCredentialFields {
		subscribe(field)
	}
	return err
}

func (ms *msgSubscriber) SubscribeToToken(handler func(token entities.Token)) error {
	return ms.messaging.Subscribe(ms.topics.Token(), tokenQoS, func(msg InMsg) {
		token, err := ParseTokenMessage(msg.Payload)
		if err != nil {
			ms.log.Warnf("ignoring token message on %s: %v", msg.Topic, err)
			return
		}
		handler(token)
	})
}
