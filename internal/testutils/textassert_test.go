package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestTextAsserter_DefaultOptions(t *testing.T) {
	opts := NewTextAsserter(t).GetOptions()

	assert.True(t, opts.TrimSpace, "TrimSpace MUST default to true")
	assert.True(t, opts.IgnoreTrailingWhitespace, "IgnoreTrailingWhitespace MUST default to true")
	assert.True(t, opts.StripANSI, "StripANSI MUST default to true")
	assert.False(t, opts.IgnoreEmptyLines, "IgnoreEmptyLines MUST default to false")
	assert.False(t, opts.EnableColors, "EnableColors MUST default to false")
}

func TestTextAsserter_MatchesTableOutput(t *testing.T) {
	actual := "\n#  ADDRESS            NAME    RSSI   \n1  AA:BB:CC:DD:EE:01  Sensor  -40\n\n"
	expected := `
#  ADDRESS            NAME    RSSI
1  AA:BB:CC:DD:EE:01  Sensor  -40`

	rec := &recordingT{}
	ta := &TextAsserter{t: rec, options: NewTextAsserter(t).GetOptions()}
	ta.Assert(actual, expected)
	assert.Empty(t, rec.errors, "trailing whitespace and surrounding blank lines MUST be ignored")
}

func TestTextAsserter_StripsColors(t *testing.T) {
	colored := "\x1b[32mconnected\x1b[0m AA:BB"
	assert.Equal(t, "connected AA:BB", StripANSI(colored))

	ta := NewTextAsserter(t)
	assert.Empty(t, ta.Diff(colored, "connected AA:BB"), "ANSI sequences MUST NOT affect comparison")

	ta.WithOptions(WithStripANSI(false))
	assert.NotEmpty(t, ta.Diff(colored, "connected AA:BB"), "ANSI sequences MUST be compared when stripping is off")
}

func TestTextAsserter_ReportsUnifiedDiff(t *testing.T) {
	rec := &recordingT{}
	ta := &TextAsserter{t: rec, options: NewTextAsserter(t).GetOptions()}

	ta.Assert("battery 80\nrssi -40", "battery 81\nrssi -40")

	require.Len(t, rec.errors, 1, "mismatch MUST be reported once")
	assert.Contains(t, rec.errors[0], "-battery 81")
	assert.Contains(t, rec.errors[0], "+battery 80")
}

func TestTextAsserter_IgnoreEmptyLines(t *testing.T) {
	ta := NewTextAsserter(t).WithOptions(WithIgnoreEmptyLines(true))
	assert.Empty(t, ta.Diff("a\n\n\nb", "a\nb"))

	ta.WithOptions(WithIgnoreEmptyLines(false))
	assert.NotEmpty(t, ta.Diff("a\n\n\nb", "a\nb"))
}

func TestTextAsserter_ColoredDiffShowsWhitespace(t *testing.T) {
	ta := NewTextAsserter(t).WithOptions(WithEnableColors(true), WithIgnoreTrailingWhitespace(false), WithTrimSpace(false))

	diff := ta.Diff("a b", "a  b")
	assert.True(t, strings.Contains(diff, "a·b"), "colored diff MUST make spaces visible, got %q", diff)
}
