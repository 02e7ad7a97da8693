package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a key/value logger. It also satisfies the Temporal SDK log.Logger interface.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for mode: "prod"/"production" is JSON at info, "test" is
// console at warn, anything else is console at debug. LOG_LEVEL overrides the
// level outside of test mode.
func New(mode string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	level := zapcore.DebugLevel
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		level = envLevel(zapcore.InfoLevel)
	case "test":
		level = zapcore.WarnLevel
	default:
		level = envLevel(level)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.SugaredLogger.Debugw(msg, sanitizeKVs(kv)...)
}

func (l *Logger) Info(msg string, kv ...interface{}) {
	l.SugaredLogger.Infow(msg, sanitizeKVs(kv)...)
}

func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.SugaredLogger.Warnw(msg, sanitizeKVs(kv)...)
}

func (l *Logger) Error(msg string, kv ...interface{}) {
	l.SugaredLogger.Errorw(msg, sanitizeKVs(kv)...)
}

func (l *Logger) Fatal(msg string, kv ...interface{}) {
	l.SugaredLogger.Fatalw(msg, sanitizeKVs(kv)...)
}

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(kv)...)}
}

func envLevel(fallback zapcore.Level) zapcore.Level {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if raw == "" {
		return fallback
	}
	var lvl zapcore.Level
	if lvl.UnmarshalText([]byte(raw)) != nil {
		return fallback
	}
	return lvl
}

// redaction is read from LOG_REDACTION_ENABLED and LOG_HASH_SALT on first use.
type redaction struct {
	on   bool
	salt string
}

var loadRedaction = sync.OnceValue(func() redaction {
	r := redaction{on: true, salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		r.on = false
	}
	return r
})

type keyClass int

const (
	keyPlain keyClass = iota
	keySecret
	keyIdentity
)

var secretNeedles = []string{"token", "authorization", "password", "secret", "cookie", "api_key", "apikey"}

func classify(key string) keyClass {
	for _, n := range secretNeedles {
		if strings.Contains(key, n) {
			return keySecret
		}
	}
	if key == "owner_id" || strings.Contains(key, "user_id") || strings.Contains(key, "actor_id") {
		return keyIdentity
	}
	return keyPlain
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 || !loadRedaction().on {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		name := stringify(kv[i])
		out = append(out, name, sanitizeValue(normKey(name), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func sanitizeValue(key string, val interface{}) interface{} {
	switch classify(key) {
	case keySecret:
		return "[REDACTED]"
	case keyIdentity:
		return pseudonym(val)
	}
	nested, ok := val.(map[string]interface{})
	if !ok {
		return val
	}
	out := make(map[string]interface{}, len(nested))
	for k, v := range nested {
		out[k] = sanitizeValue(normKey(k), v)
	}
	return out
}

// pseudonym is a salted, truncated sha256 so identities correlate across lines without leaking.
func pseudonym(val interface{}) string {
	raw := stringify(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(loadRedaction().salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func normKey(k string) string { return strings.ToLower(strings.TrimSpace(k)) }

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
