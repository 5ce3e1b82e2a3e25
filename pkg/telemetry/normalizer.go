package telemetry

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/sirupsen/logrus"
)

const (
	EventWorkflowState   = "workflow:state"
	EventSenderStatus    = "sender:status"
	EventControllerState = "controller:state"
)

const (
	MetricWorkflowState          = "WorkflowState"
	MetricSelectedGcodeFile      = "SelectedGcodeFile"
	MetricTotalGcodeCommands     = "TotalGcodeCommands"
	MetricSentGcodeCommands      = "SentGcodeCommands"
	MetricProcessedGcodeCommands = "ProcessedGcodeCommands"
	MetricElapsedTime            = "ElapsedTime"
	MetricRemainingTime          = "RemainingTime"
	MetricFeedRate               = "FeedRate"
	MetricSpindleSpeed           = "SpindleSpeed"
	MetricActiveState            = "ActiveState"
	MetricWpos                   = "Wpos"
)

// WposDelimiter joins the x, y and z work coordinates of the Wpos metric.
const WposDelimiter = ","

type fieldKind int

const (
	stringField fieldKind = iota
	numberField
	// textField accepts strings and the literal text of numbers.
	textField
)

type fieldSpec struct {
	metric string
	key    string
	path   []string
	kind   fieldKind
}

type eventShape struct {
	position   int
	anchorKind Kind
	fields     []fieldSpec
}

var eventShapes = map[string]eventShape{
	EventWorkflowState: {
		position:   0,
		anchorKind: KindString,
		fields: []fieldSpec{
			{metric: MetricWorkflowState, key: "state", kind: stringField},
		},
	},
	EventSenderStatus: {
		position:   0,
		anchorKind: KindObject,
		fields: []fieldSpec{
			{metric: MetricSelectedGcodeFile, key: "name", kind: stringField},
			{metric: MetricTotalGcodeCommands, key: "total", kind: numberField},
			{metric: MetricSentGcodeCommands, key: "sent", kind: numberField},
			{metric: MetricProcessedGcodeCommands, key: "received", kind: numberField},
			{metric: MetricElapsedTime, key: "elapsedTime", kind: textField},
			{metric: MetricRemainingTime, key: "remainingTime", kind: textField},
		},
	},
	EventControllerState: {
		position:   1,
		anchorKind: KindObject,
		fields: []fieldSpec{
			{metric: MetricFeedRate, key: "feedrate", path: []string{"parserstate"}, kind: numberField},
			{metric: MetricSpindleSpeed, key: "spindle", path: []string{"parserstate"}, kind: numberField},
			{metric: MetricActiveState, key: "activeState", path: []string{"status"}, kind: stringField},
		},
	},
}

// Normalizer turns raw stream events into publishable metrics.
type Normalizer struct {
	now func() time.Time
	log *logrus.Entry
}

func NewNormalizer(log *logrus.Entry) *Normalizer {
	return &Normalizer{now: time.Now, log: log}
}

// Normalize never fails: missing or malformed fields resolve to typed defaults.
// Events without a known shape become a single bulk metric carrying the raw payload.
func (n *Normalizer) Normalize(eventName string, payload json.RawMessage) []entities.NormalizedMetric {
	now := n.now()
	shape, ok := eventShapes[eventName]
	if !ok {
		raw := make([]byte, len(payload))
		copy(raw, payload)
		return []entities.NormalizedMetric{{Name: eventName, Timestamp: now, Bulk: true, Raw: raw}}
	}

	root, err := ParseValue(payload)
	if err != nil {
		n.log.Warnf("Event %s: %v", eventName, err)
		root = Value{Kind: KindNull}
	}
	anchor, hasAnchor := selectAnchor(root, shape)

	metrics := make([]entities.NormalizedMetric, 0, len(shape.fields)+1)
	for _, field := range shape.fields {
		value := n.resolve(eventName, root, anchor, hasAnchor, field)
		metrics = append(metrics, entities.NormalizedMetric{Name: field.metric, Value: value, Timestamp: now})
	}
	if eventName == EventControllerState {
		if wpos, ok := resolveWpos(root, anchor, hasAnchor); ok {
			metrics = append(metrics, entities.NormalizedMetric{Name: MetricWpos, Value: wpos, Timestamp: now})
		}
	}
	return metrics
}

func selectAnchor(root Value, shape eventShape) (Value, bool) {
	switch root.Kind {
	case KindObject:
		return root, true
	case KindArray:
		if shape.position < len(root.Items) && root.Items[shape.position].Kind == shape.anchorKind {
			return root.Items[shape.position], true
		}
		for _, item := range root.Items {
			if item.Kind == shape.anchorKind {
				return item, true
			}
		}
		return Value{}, false
	}
	return root, root.Kind == shape.anchorKind
}

func (n *Normalizer) resolve(eventName string, root, anchor Value, hasAnchor bool, field fieldSpec) interface{} {
	accept := acceptor(field.kind)

	// A bare string argument is the value itself.
	if hasAnchor && field.kind == stringField && anchor.Kind == KindString {
		return anchor.Text
	}
	if hasAnchor {
		if value, ok := anchor.Get(field.key); ok && accept(value) {
			return convert(value, field.kind)
		}
		if len(field.path) > 0 {
			nested := append(append([]string{}, field.path...), field.key)
			if value, ok := anchor.Path(nested...); ok && accept(value) {
				return convert(value, field.kind)
			}
		}
	}
	if value, ok := root.Find(field.key, accept); ok {
		return convert(value, field.kind)
	}
	if value, ok := root.Find(field.key, func(Value) bool { return true }); ok && value.Kind != KindNull {
		n.log.Warnf("Event %s: field %s has unusable %s value, using default", eventName, field.key, value.Kind)
	}
	return defaultValue(field.kind)
}

func acceptor(kind fieldKind) func(Value) bool {
	switch kind {
	case numberField:
		return func(v Value) bool {
			_, ok := v.AsFloat()
			return ok
		}
	case textField:
		return func(v Value) bool {
			return v.Kind == KindString || v.Kind == KindNumber
		}
	}
	return func(v Value) bool { return v.Kind == KindString }
}

func convert(value Value, kind fieldKind) interface{} {
	if kind == numberField {
		number, _ := value.AsFloat()
		return number
	}
	text, _ := value.AsString()
	return text
}

func defaultValue(kind fieldKind) interface{} {
	if kind == numberField {
		return float64(0)
	}
	return ""
}

func resolveWpos(root, anchor Value, hasAnchor bool) (string, bool) {
	isObject := func(v Value) bool { return v.Kind == KindObject }
	var wpos Value
	found := false
	if hasAnchor {
		if wpos, found = anchor.Get("wpos"); !found || !isObject(wpos) {
			wpos, found = anchor.Path("status", "wpos")
		}
		found = found && isObject(wpos)
	}
	if !found {
		if wpos, found = root.Find("wpos", isObject); !found {
			return "", false
		}
	}

	axes := make([]string, 0, 3)
	for _, axis := range []string{"x", "y", "z"} {
		value, ok := wpos.Get(axis)
		if !ok {
			return "", false
		}
		if _, numeric := value.AsFloat(); !numeric {
			return "", false
		}
		axes = append(axes, strings.TrimSpace(value.Text))
	}
	return strings.Join(axes, WposDelimiter), true
}
