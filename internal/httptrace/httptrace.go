// Package httptrace dumps outbound HTTP exchanges to the structured log with
// credentials redacted.
package httptrace

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"regexp"

	"github.com/tomato-app/tomato-support/logger"
)

// MaxDump bounds the size of a logged response dump.
const MaxDump = 4096

var secretRe = regexp.MustCompile(`(?im)^(Authorization|X-Api-Key|Cookie|Token|X-Goog-Api-Key):\s*.+$`)

// Redact masks credential-bearing header lines in a raw HTTP dump.
func Redact(dump []byte) []byte {
	return secretRe.ReplaceAll(dump, []byte("$1: ***REDACTED***"))
}

// RoundTripper logs each request and response it forwards to Base.
type RoundTripper struct {
	Base  http.RoundTripper
	Log   *logger.Logger
	Label string
}

// Wrap returns base decorated with tracing, or base itself when log is nil.
func Wrap(base http.RoundTripper, log *logger.Logger, label string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		return base
	}
	return &RoundTripper{Base: base, Log: log, Label: label}
}

func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(b))
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil }
	}
	if d, err := httputil.DumpRequestOut(req, true); err == nil {
		t.Log.WithFields(map[string]interface{}{
			"trace":  t.Label,
			"method": req.Method,
			"url":    req.URL.String(),
			"dump":   string(Redact(d)),
		}).Debug("outbound request")
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		t.Log.WithField("trace", t.Label).Error("outbound request failed", err)
		return resp, err
	}

	if resp.Body != nil {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(b))
		d, _ := httputil.DumpResponse(resp, true)
		if len(d) > MaxDump {
			d = append(d[:MaxDump], []byte("\n... (truncated) ...")...)
		}
		t.Log.WithFields(map[string]interface{}{
			"trace":  t.Label,
			"status": resp.StatusCode,
			"dump":   string(Redact(d)),
		}).Debug("inbound response")
	}
	return resp, nil
}
