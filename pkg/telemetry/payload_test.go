package telemetry

import (
	"strings"
	"testing"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anyValue(Value) bool { return true }

func nestedArrays(depth int) string {
	return strings.Repeat("[", depth) + strings.Repeat("]", depth)
}

func TestParseValueKeepsDocumentOrder(t *testing.T) {
	value, err := ParseValue([]byte(`{"b":1,"a":"x","c":[true,null]}`))
	require.NoError(t, err)
	require.Equal(t, KindObject, value.Kind)
	keys := []string{}
	for _, field := range value.Fields {
		keys = append(keys, field.Key)
	}
	assert.Equal(t, []string{"b", "a", "c"}, keys)

	list, ok := value.Get("c")
	require.True(t, ok)
	assert.Equal(t, KindArray, list.Kind)
	assert.Equal(t, KindBool, list.Items[0].Kind)
	assert.Equal(t, KindNull, list.Items[1].Kind)
}

func TestParseValueRejectsMalformedInput(t *testing.T) {
	for _, raw := range []string{`{"a":`, `{"a":1} {"b":2}`, ``, `[1,]`} {
		_, err := ParseValue([]byte(raw))
		assert.True(t, errors.Is(err, entities.ErrMalformedPayload), raw)
	}
}

func TestParseValueLimitsNesting(t *testing.T) {
	_, err := ParseValue([]byte(nestedArrays(maxNestingDepth)))
	assert.NoError(t, err)

	_, err = ParseValue([]byte(nestedArrays(maxNestingDepth + 1)))
	assert.True(t, errors.Is(err, entities.ErrMalformedPayload))
}

func TestValueCoercion(t *testing.T) {
	value, err := ParseValue([]byte(`{"n":12.5,"s":" 7 ","t":"Run","b":false}`))
	require.NoError(t, err)

	n, _ := value.Get("n")
	number, ok := n.AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 12.5, number)
	text, ok := n.AsString()
	assert.True(t, ok)
	assert.Equal(t, "12.5", text)

	s, _ := value.Get("s")
	number, ok = s.AsFloat()
	assert.True(t, ok)
	assert.Equal(t, float64(7), number)

	word, _ := value.Get("t")
	_, ok = word.AsFloat()
	assert.False(t, ok)

	b, _ := value.Get("b")
	_, ok = b.AsString()
	assert.False(t, ok)
}

func TestFindIsPreOrderInDocumentOrder(t *testing.T) {
	value, err := ParseValue([]byte(`{"a":{"key":1},"key":2,"z":[{"key":3}]}`))
	require.NoError(t, err)

	found, ok := value.Find("key", anyValue)
	require.True(t, ok)
	assert.Equal(t, "1", found.Text)
}

func TestFindSkipsRejectedValues(t *testing.T) {
	value, err := ParseValue([]byte(`[{"key":{"inner":true}},{"deeper":{"key":"yes"}}]`))
	require.NoError(t, err)

	found, ok := value.Find("key", func(v Value) bool { return v.Kind == KindString })
	require.True(t, ok)
	assert.Equal(t, "yes", found.Text)
}

func TestFindStopsAfterNodeBudget(t *testing.T) {
	raw := []byte("[")
	for i := 0; i < maxSearchNodes+1; i++ {
		raw = append(raw, "{},"...)
	}
	raw = append(raw, `{"key":5}]`...)
	value, err := ParseValue(raw)
	require.NoError(t, err)

	_, ok := value.Find("key", anyValue)
	assert.False(t, ok)
}
