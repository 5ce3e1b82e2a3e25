package entities

import "strings"

const (
	serverSegment = "Server"
	guiSegment    = "Data/GUI"
	bulkSegment   = "Data/Bulk"
	tokenSuffix   = "MqttToken"
)

// Topics builds the bus topic names under a common root.
type Topics struct {
	Root string
}

func NewTopics(root string) Topics {
	return Topics{Root: strings.TrimRight(root, "/")}
}

func (t Topics) join(parts ...string) string {
	return t.Root + "/" + strings.Join(parts, "/")
}

// Credential returns the inbound topic for one credential field.
func (t Topics) Credential(field CredentialField) string {
	return t.join(serverSegment, field.TopicSuffix())
}

// Token returns the token distribution topic.
func (t Topics) Token() string {
	return t.join(serverSegment, tokenSuffix)
}

// GUI returns the topic of a normalized metric.
func (t Topics) GUI(metricName string) string {
	return t.join(guiSegment, metricName)
}

// Bulk returns the topic of an unrecognized event.
func (t Topics) Bulk(eventName string) string {
	return t.join(bulkSegment, eventName)
}

// CredentialField resolves an inbound topic back to its field.
func (t Topics) CredentialField(topic string) (CredentialField, bool) {
	for _, field := range AllCredentialFields {
		if topic == t.Credential(field) {
			return field, true
		}
	}
	return "", false
}
