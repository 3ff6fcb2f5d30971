package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MONGO_URI", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"LLM_BASE_URL", "LLM_PROVIDER", "ORDER_SERVICE_URL", "USE_MEMORY", "PORT", "MAX_MSG_LEN"} {
		t.Setenv(k, "")
	}
	t.Setenv("STORE", "memory")
	t.Setenv("LOG_LEVEL", "error")
}

func TestConverse(t *testing.T) {
	var seen []string
	ask := func(_ context.Context, msg string) (string, error) {
		seen = append(seen, msg)
		if msg == "fail" {
			return "", errors.New("nope")
		}
		return "re: " + msg, nil
	}
	var out bytes.Buffer
	require.NoError(t, converse(context.Background(), strings.NewReader("hello\n\n  fail \nbye\n"), &out, ask))

	assert.Equal(t, []string{"hello", "fail", "bye"}, seen)
	assert.Contains(t, out.String(), "re: hello\n")
	assert.Contains(t, out.String(), "error: nope\n")
	assert.Contains(t, out.String(), "re: bye\n")
}

func TestAskInProcess(t *testing.T) {
	isolateEnv(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ask", "what desserts do you have"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "Our dessert options include: Ripple Ice Cream, Fruit Ice Cream, Jar Ice Cream, Vanilla Ice Cream.\n", out.String())
}

func TestSeedCommand(t *testing.T) {
	isolateEnv(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"seed"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "seeded 32 menu items\n", out.String())
}

func TestBadConfigFails(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STORE", "postgres")
	rootCmd.SetArgs([]string{"seed"})
	defer rootCmd.SetArgs(nil)
	assert.Error(t, rootCmd.Execute())
}
