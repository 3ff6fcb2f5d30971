package httptrace

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomato-app/tomato-support/logger"
)

func TestRedact(t *testing.T) {
	in := "POST /v1 HTTP/1.1\r\nAuthorization: Bearer sk-secret\r\nCookie: sid=abc\r\nContent-Type: application/json\r\n"
	out := string(Redact([]byte(in)))
	assert.NotContains(t, out, "sk-secret")
	assert.NotContains(t, out, "sid=abc")
	assert.Contains(t, out, "Content-Type: application/json")
}

func TestRoundTripperPreservesBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_, _ = w.Write(append([]byte("echo:"), b...))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log := logger.NewWithOptions(logger.Options{Level: logger.DEBUG, JSON: true, Output: &buf})
	client := &http.Client{Transport: Wrap(nil, log, "test")}

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("hello"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sk-secret")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "echo:hello", string(body))
	assert.Contains(t, buf.String(), "outbound request")
	assert.NotContains(t, buf.String(), "sk-secret")
}

func TestWrapWithoutLoggerIsPassthrough(t *testing.T) {
	base := http.DefaultTransport
	assert.Equal(t, base, Wrap(base, nil, "x"))
}
