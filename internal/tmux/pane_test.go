package tmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordLines struct{ lines []string }

func (r *recordLines) WriteLine(line string) error {
	r.lines = append(r.lines, line)
	return nil
}

func TestWriter_BuffersPartialLines(t *testing.T) {
	rec := &recordLines{}
	w := &Writer{lines: rec}

	_, err := w.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, rec.lines)

	_, err = w.Write([]byte("ond\n\nthird"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, rec.lines)

	require.NoError(t, w.Flush())
	assert.Equal(t, []string{"first", "second", "third"}, rec.lines)
	require.NoError(t, w.Flush())
	assert.Len(t, rec.lines, 3)
}

func TestEscapeTmuxString(t *testing.T) {
	assert.Equal(t, `it'"'"'s`, escapeTmuxString("it's"))
	assert.Equal(t, `a\\b`, escapeTmuxString(`a\b`))
}

func TestGenerateSessionName(t *testing.T) {
	assert.Equal(t, "hotswap-abc-123", GenerateSessionName("abc-123"))
	assert.Equal(t, "hotswap-a-b", GenerateSessionName("a/b"))
	assert.Equal(t, "hotswap", GenerateSessionName("///"))
	assert.Len(t, GenerateSessionName("0123456789012345678901234567890123456789"), len("hotswap-")+32)
}

func TestBanner(t *testing.T) {
	lines := banner("hotswap - s1", "second")
	require.Len(t, lines, 4)
	assert.Equal(t, lines[0], lines[3])
	assert.Equal(t, "  hotswap - s1", lines[1])
}

func TestWriteLineWithoutSession(t *testing.T) {
	m := &Manager{config: &Config{SessionName: "x"}}
	assert.ErrorIs(t, m.WriteLine("hi"), ErrNoPaneAvailable)
	assert.ErrorIs(t, m.ClearPane(), ErrNoPaneAvailable)
	assert.NoError(t, m.Cleanup())
	assert.Equal(t, "tmux attach -t x", m.AttachCommand())
}
