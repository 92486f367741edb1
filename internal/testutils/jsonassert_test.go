package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	opts := NewJSONAsserter(t).GetOptions()

	assert.True(t, opts.IgnoreExtraKeys, "IgnoreExtraKeys MUST default to true")
	assert.True(t, opts.AllowPresence, "AllowPresence MUST default to true")
	assert.False(t, opts.IgnoreArrayOrder, "IgnoreArrayOrder MUST default to false")
	assert.Empty(t, opts.IgnoredFields, "IgnoredFields MUST default to empty")
}

func TestJSONAsserter_ExtraKeys(t *testing.T) {
	actual := `{"type":"device_found","address":"AA","rssi":-40,"timestamp":"2024-01-01T00:00:00Z"}`
	expected := `{"type":"device_found","address":"AA"}`

	ja := NewJSONAsserter(t)
	assert.Empty(t, ja.Diff(actual, expected), "extra keys MUST be ignored by default")

	ja.WithOptions(WithIgnoreExtraKeys(false))
	assert.NotEmpty(t, ja.Diff(actual, expected), "extra keys MUST fail when not ignored")
}

func TestJSONAsserter_PresencePlaceholder(t *testing.T) {
	actual := `{"type":"ready","timestamp":"2024-01-01T00:00:00Z"}`

	ja := NewJSONAsserter(t)
	assert.Empty(t, ja.Diff(actual, `{"type":"ready","timestamp":"<<PRESENCE>>"}`))
	assert.NotEmpty(t, ja.Diff(`{"type":"ready"}`, `{"type":"ready","timestamp":"<<PRESENCE>>"}`),
		"placeholder MUST require the key to exist")

	ja.WithOptions(WithAllowPresencePlaceholder(false))
	assert.NotEmpty(t, ja.Diff(actual, `{"type":"ready","timestamp":"<<PRESENCE>>"}`))
}

func TestJSONAsserter_IgnoredFieldsAndOrder(t *testing.T) {
	actual := `[{"address":"B","last_seen":"t2"},{"address":"A","last_seen":"t1"}]`
	expected := `[{"address":"A","last_seen":"x"},{"address":"B","last_seen":"y"}]`

	ja := NewJSONAsserter(t).WithOptions(WithIgnoredFields("last_seen"))
	assert.NotEmpty(t, ja.Diff(actual, expected), "order MUST matter by default")

	ja.WithOptions(WithIgnoreArrayOrder(true))
	assert.Empty(t, ja.Diff(actual, expected), "ignored fields MUST NOT influence array ordering")
}

func TestJSONAsserter_AssertValue(t *testing.T) {
	rec := &recordingT{}
	ja := &JSONAsserter{t: rec, options: NewJSONAsserter(t).GetOptions()}

	ja.AssertValue(map[string]any{"battery": 80}, `{"battery":81}`)

	require.Len(t, rec.errors, 1, "mismatch MUST be reported")
	assert.Contains(t, rec.errors[0], "battery")
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	ja := NewJSONAsserter(t)
	assert.Contains(t, ja.Diff("{", `{}`), "invalid actual JSON")
	assert.Contains(t, ja.Diff(`{}`, "{"), "invalid expected JSON")
}
