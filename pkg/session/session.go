package session

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var DebugLog func(string, ...interface{})

// Session carries the shared HTTP client used when fetching remote content
// files.
type Session struct {
	Client *http.Client
}

type LoggingTransport struct {
	Transport http.RoundTripper
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if DebugLog != nil {
		DebugLog("requesting url: %s", req.URL.String())
	}

	resp, err := t.Transport.RoundTrip(req)

	if DebugLog != nil {
		if err != nil {
			DebugLog("request for %s failed: %v", req.URL.String(), err)
		} else {
			DebugLog("response for %s: status code %d", req.URL.String(), resp.StatusCode)

			if resp.StatusCode >= 400 && resp.Body != nil {
				bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 500))
				if readErr == nil && len(bodyBytes) > 0 {
					DebugLog("error response body: %s", strings.TrimSpace(string(bodyBytes)))
				}
			}
		}
	}

	return resp, err
}

func New(timeout time.Duration) (*Session, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("session timeout must be positive, got %v", timeout)
	}

	baseTransport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: &LoggingTransport{Transport: baseTransport},
	}

	return &Session{
		Client: client,
	}, nil
}
