package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

const (
	dialBackoff            = 250 * time.Millisecond
	dialBackoffMax         = 5 * time.Second
	namespaceEnsureTimeout = 10 * time.Second
)

// NewClient dials Temporal and keeps retrying for DialMaxWaitSeconds.
// Without an address it returns nil, nil.
func NewClient(log *logger.Logger, cfg Config) (temporalsdkclient.Client, error) {
	cfg = cfg.Normalized()
	if !cfg.Enabled() {
		if log != nil {
			log.Warn("TEMPORAL_ADDRESS not set; Temporal disabled")
		}
		return nil, nil
	}
	opts, err := clientOptions(cfg, log, true)
	if err != nil {
		return nil, err
	}

	var c temporalsdkclient.Client
	maxWait := time.Duration(cfg.DialMaxWaitSeconds) * time.Second
	attempts, err := retryUntil(context.Background(), log, "temporal dial", maxWait, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.DialTimeoutSeconds)*time.Second)
		defer cancel()
		dialed, err := temporalsdkclient.DialContext(ctx, opts)
		if err != nil {
			return err
		}
		c = dialed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
	}
	if log != nil {
		log.Info("Connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace, "attempts", attempts)
	}

	if cfg.AutoRegisterNamespace {
		if err := EnsureNamespace(context.Background(), cfg, log); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// EnsureNamespace registers cfg.Namespace on a self-hosted server when it does not exist yet.
func EnsureNamespace(ctx context.Context, cfg Config, log *logger.Logger) error {
	cfg = cfg.Normalized()
	if !cfg.Enabled() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, namespaceEnsureTimeout)
	defer cancel()

	// No namespace on these options: the namespace client must work before it exists.
	opts, err := clientOptions(cfg, log, false)
	if err != nil {
		return err
	}
	ns, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace ensure: init namespace client: %w", err)
	}
	defer ns.Close()

	_, err = retryUntil(ctx, log, "temporal namespace ensure", namespaceEnsureTimeout, func() error {
		return ensureNamespaceOnce(ctx, ns, cfg, log)
	})
	if err != nil {
		return fmt.Errorf("temporal namespace ensure (namespace=%s): %w", cfg.Namespace, err)
	}
	return nil
}

func ensureNamespaceOnce(ctx context.Context, ns temporalsdkclient.NamespaceClient, cfg Config, log *logger.Logger) error {
	_, err := ns.Describe(ctx, cfg.Namespace)
	if err == nil {
		return nil
	}
	var missing *serviceerror.NamespaceNotFound
	if !errors.As(err, &missing) {
		return classifyRPC("describe namespace", err)
	}

	err = ns.Register(ctx, &workflowservice.RegisterNamespaceRequest{
		Namespace:                        cfg.Namespace,
		Description:                      "docprov auto-registered namespace",
		WorkflowExecutionRetentionPeriod: durationpb.New(time.Duration(cfg.NamespaceRetentionDays) * 24 * time.Hour),
	})
	var exists *serviceerror.NamespaceAlreadyExists
	switch {
	case err == nil:
		if log != nil {
			log.Info("Registered Temporal namespace", "namespace", cfg.Namespace, "retention_days", cfg.NamespaceRetentionDays)
		}
		return nil
	case errors.As(err, &exists):
		return nil
	}
	return classifyRPC("register namespace", err)
}

func clientOptions(cfg Config, log *logger.Logger, withNamespace bool) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: cfg.Address, Logger: log}
	if withNamespace {
		opts.Namespace = cfg.Namespace
	}
	tlsCfg, err := mtlsConfig(cfg)
	if err != nil {
		return opts, err
	}
	opts.ConnectionOptions.TLS = tlsCfg
	return opts, nil
}

// mtlsConfig returns nil when no certificate paths are configured.
func mtlsConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" && cfg.ClientKeyPath == "" && cfg.ClientCAPath == "" {
		return nil, nil
	}
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, fmt.Errorf("temporal tls: client cert and key paths must be set together")
	}
	pair, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: load client cert/key: %w", err)
	}
	out := &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAPath == "" {
		return out, nil
	}
	caPEM, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: read CA: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("temporal tls: %s holds no PEM certificates", cfg.ClientCAPath)
	}
	out.RootCAs = roots
	return out, nil
}

// permanentError stops retryUntil early.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// classifyRPC marks everything except transient gRPC failures as permanent.
func classifyRPC(step string, err error) error {
	wrapped := fmt.Errorf("%s: %w", step, err)
	if transientRPC(err) {
		return wrapped
	}
	return permanentError{err: wrapped}
}

func transientRPC(err error) bool {
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
			return true
		}
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// retryUntil calls fn until it succeeds, returns a permanentError, ctx ends,
// or maxWait elapses. A zero maxWait means a single attempt.
func retryUntil(ctx context.Context, log *logger.Logger, what string, maxWait time.Duration, fn func() error) (int, error) {
	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return attempt, nil
		}
		var stop permanentError
		if errors.As(err, &stop) {
			return attempt, stop.err
		}
		if maxWait <= 0 || time.Now().After(deadline) || ctx.Err() != nil {
			return attempt, err
		}
		if log != nil {
			log.Warn(what+" retrying", "attempt", attempt, "error", err)
		}
		timer := time.NewTimer(ClampBackoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
}

// ClampBackoff doubles from 250ms per attempt, capped at 5s.
func ClampBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return dialBackoffMax
	}
	if d := dialBackoff << (attempt - 1); d < dialBackoffMax {
		return d
	}
	return dialBackoffMax
}
