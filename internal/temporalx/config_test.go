package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNormalizedFillsDefaults(t *testing.T) {
	cfg := Config{Address: " localhost:7233 ", NamespaceRetentionDays: 900, WorkerConcurrency: -1}.Normalized()
	if cfg.Address != "localhost:7233" || cfg.Namespace != "docprov" || cfg.TaskQueue != "docprov" {
		t.Fatalf("normalized: %+v", cfg)
	}
	if cfg.NamespaceRetentionDays != 7 || cfg.WorkerConcurrency != 4 || cfg.GroupTimeoutSeconds != 3600 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if !cfg.Enabled() || (Config{}).Enabled() {
		t.Fatalf("Enabled should follow the address")
	}
}

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{4, 2 * time.Second},
		{10, 5 * time.Second},
	}
	for _, c := range cases {
		if got := ClampBackoff(c.attempt); got != c.want {
			t.Fatalf("attempt %d: want=%s got=%s", c.attempt, c.want, got)
		}
	}
}

func TestRetryUntilStopsOnPermanentError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	attempts, err := retryUntil(context.Background(), nil, "test", time.Minute, func() error {
		calls++
		if calls == 1 {
			return status.Error(codes.Unavailable, "down")
		}
		return permanentError{err: boom}
	})
	if !errors.Is(err, boom) || attempts != 2 {
		t.Fatalf("attempts=%d err=%v", attempts, err)
	}
}

func TestRetryUntilWithoutWaitTriesOnce(t *testing.T) {
	calls := 0
	_, err := retryUntil(context.Background(), nil, "test", 0, func() error {
		calls++
		return status.Error(codes.Unavailable, "down")
	})
	if err == nil || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestClassifyRPC(t *testing.T) {
	var stop permanentError
	if errors.As(classifyRPC("describe", status.Error(codes.Unavailable, "down")), &stop) {
		t.Fatalf("unavailable should be retried")
	}
	if !errors.As(classifyRPC("describe", status.Error(codes.PermissionDenied, "no")), &stop) {
		t.Fatalf("permission denied should stop the loop")
	}
}

func TestMTLSConfig(t *testing.T) {
	if cfg, err := mtlsConfig(Config{}); cfg != nil || err != nil {
		t.Fatalf("no paths should disable tls: %v %v", cfg, err)
	}
	if _, err := mtlsConfig(Config{ClientCertPath: "/tmp/cert.pem"}); err == nil {
		t.Fatalf("cert without key should fail")
	}
}
