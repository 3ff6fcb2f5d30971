package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(l), &m), l)
		out = append(out, m)
	}
	return out
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: INFO, JSON: true, Output: &buf, Service: "tomato-support"})

	log.WithField("request_id", "r-1").WithFields(map[string]interface{}{"intent": "show-cart"}).Info("classified")
	log.Error("lookup failed", errors.New("timeout"))
	log.Debug("hidden")

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "classified", got[0]["msg"])
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "r-1", got[0]["request_id"])
	assert.Equal(t, "show-cart", got[0]["intent"])
	assert.Equal(t, "tomato-support", got[0]["service"])
	assert.Equal(t, "timeout", got[1]["error"])
}

func TestLevelIsShared(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: WARN, JSON: true, Output: &buf})
	child := log.WithField("component", "api")

	child.Info("dropped")
	assert.False(t, child.Enabled(INFO))

	log.SetLevel(DEBUG)
	assert.True(t, child.Enabled(DEBUG))
	child.Debugf("kept %d", 1)

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "kept 1", got[0]["msg"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": DEBUG, "INFO": INFO, "": INFO, "warning": WARN, " error ": ERROR, "fatal": FATAL} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, "WARN", WARN.String())
}

func TestConsoleAndNop(t *testing.T) {
	var buf bytes.Buffer
	NewWithOptions(Options{Level: INFO, Output: &buf}).Warnf("menu store %s", "down")
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), "menu store down")

	NewNop().Error("nothing", errors.New("x"))
}

func TestGlobal(t *testing.T) {
	prev := GetLogger()
	defer SetGlobal(prev)

	var buf bytes.Buffer
	SetGlobal(NewWithOptions(Options{Level: INFO, JSON: true, Output: &buf}))
	SetGlobal(nil)
	Infof("hello %s", "tomato")
	assert.Equal(t, "hello tomato", lines(t, &buf)[0]["msg"])
}
