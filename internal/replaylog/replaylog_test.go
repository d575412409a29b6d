package replaylog

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevels(levelsFor("warn"))
	defer SetOutput(io.Discard) //nolint:staticcheck // reset for other tests in the package

	Debugln(Global, "should not appear")
	Warnln(Global, "should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestMultiWriterFanOut(t *testing.T) {
	var a, b bytes.Buffer
	mw, err := MultiWriter(&a, &b)
	require.NoError(t, err)

	n, err := mw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", a.String())
	assert.Equal(t, "hello", b.String())
}

func TestMultiWriterAddRemove(t *testing.T) {
	mw := &multiWriter{}
	var a bytes.Buffer
	require.NoError(t, mw.Add(&a))
	assert.ErrorIs(t, mw.Add(&a), errWriterAlreadyLoaded)
	require.NoError(t, mw.Remove(&a))
	assert.ErrorIs(t, mw.Remove(&a), errWriterNotFound)
}

func TestInfofFormatsMessage(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevels(levelsFor("debug"))

	Infof(Global, "candle store loaded %d rows", 42)
	assert.True(t, strings.Contains(buf.String(), "candle store loaded 42 rows"))
}
