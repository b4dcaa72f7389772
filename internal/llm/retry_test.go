package llm

import (
	"errors"
	"testing"
	"time"
)

func TestRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota", errors.New("Quota Exceeded for project"), true},
		{"http 429", errors.New("server returned 429"), true},
		{"http 503", errors.New("503 Service Unavailable"), true},
		{"unavailable", errors.New("model currently UNAVAILABLE"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("context deadline exceeded (Client.Timeout)"), true},
		{"invalid api key", errors.New("API key not valid"), false},
		{"bad request", errors.New("400 invalid argument"), false},
		{"content filter", errors.New("response blocked by safety settings"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	if cfg.MaxRetries < 1 {
		t.Error("MaxRetries must allow at least one retry")
	}
	if cfg.InitialInterval <= 0 || cfg.MaxInterval < cfg.InitialInterval {
		t.Errorf("bad intervals: initial=%v max=%v", cfg.InitialInterval, cfg.MaxInterval)
	}
	if cfg.MaxInterval > time.Minute {
		t.Errorf("MaxInterval %v unreasonably large", cfg.MaxInterval)
	}
}
