package auth

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Authenticator is the side of the gateway the aggregator drives.
type Authenticator interface {
	Authenticate(ctx context.Context, credentials entities.Credentials) (entities.Token, error)
	UpdateCredentials(credentials entities.Credentials)
}

// Aggregator collects credential fields arriving one message at a time and triggers
// authentication once, when every required field is populated.
type Aggregator struct {
	mu            sync.Mutex
	credentials   entities.Credentials
	required      []entities.CredentialField
	fired         atomic.Bool
	authenticator Authenticator
	log           *logrus.Entry
	wg            sync.WaitGroup
}

func NewAggregator(required []entities.CredentialField, authenticator Authenticator, log *logrus.Entry) *Aggregator {
	return &Aggregator{
		required:      required,
		authenticator: authenticator,
		log:           log,
	}
}

// Ingest records one credential field from a raw bus payload.
// Malformed and empty payloads are logged and leave the credentials untouched.
func (a *Aggregator) Ingest(field entities.CredentialField, payload []byte) {
	if !field.Valid() {
		a.log.Warnf("ignoring unknown credential field %q", field)
		return
	}
	value, err := ParseCredentialPayload(field, payload)
	if err != nil {
		a.log.Warnf("ignoring %s payload: %v", field, err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Retained messages are re-delivered on every bus reconnect.
	if a.credentials.Get(field) == value {
		a.log.Debugf("%s re-delivered unchanged", field)
		return
	}
	a.credentials.Set(field, value)
	a.log.Infof("received %s", field)

	if a.fired.Load() {
		a.authenticator.UpdateCredentials(a.credentials)
		return
	}
	if missing := a.credentials.Missing(a.required); len(missing) > 0 {
		a.log.Debugf("waiting for %v", missing)
		return
	}
	if !a.fired.CompareAndSwap(false, true) {
		return
	}

	credentials := a.credentials
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if _, err := a.authenticator.Authenticate(context.Background(), credentials); err != nil {
			a.log.Errorf("initial authentication failed, waiting for a refresh trigger: %v", err)
		}
	}()
}

// IsComplete reports whether every required field is populated.
func (a *Aggregator) IsComplete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.credentials.Missing(a.required)) == 0
}

// Credentials returns a copy of the fields collected so far.
func (a *Aggregator) Credentials() entities.Credentials {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.credentials
}

// Wait blocks until a triggered authentication has returned.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

// ParseCredentialPayload extracts a field value from plain text, a JSON string literal,
// or a one-field JSON record keyed by the field's record key.
func ParseCredentialPayload(field entities.CredentialField, payload []byte) (string, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "", errors.Wrap(entities.ErrMalformedPayload, "empty payload")
	}

	switch text[0] {
	case '{':
		record := map[string]interface{}{}
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			return "", errors.Wrap(entities.ErrMalformedPayload, err.Error())
		}
		raw, ok := lookupRecordKey(record, field.RecordKey())
		if !ok {
			return "", errors.Wrapf(entities.ErrMalformedPayload, "record has no %s key", field.RecordKey())
		}
		return recordValue(raw)
	case '"':
		var value string
		if err := json.Unmarshal([]byte(text), &value); err != nil {
			return "", errors.Wrap(entities.ErrMalformedPayload, err.Error())
		}
		return nonEmpty(value)
	}
	return nonEmpty(text)
}

func lookupRecordKey(record map[string]interface{}, key string) (interface{}, bool) {
	if value, ok := record[key]; ok {
		return value, true
	}
	for name, value := range record {
		if strings.EqualFold(name, key) {
			return value, true
		}
	}
	return nil, false
}

func recordValue(raw interface{}) (string, error) {
	switch value := raw.(type) {
	case string:
		return nonEmpty(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	}
	return "", errors.Wrapf(entities.ErrMalformedPayload, "unsupported value %T", raw)
}

func nonEmpty(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.Wrap(entities.ErrMalformedPayload, "empty value")
	}
	return value, nil
}
