package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithGroupID(ctx, "grp-1")

	log.Error(ctx, "boom", errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("expected request_id to be preserved; entry=%s", buf.String())
	}
	if entry["group_id"] != "grp-1" {
		t.Fatalf("expected group_id to be preserved; entry=%s", buf.String())
	}
	if entry["service"] != "test" {
		t.Fatalf("expected service field; entry=%s", buf.String())
	}
	if _, ok := entry["stack"]; !ok {
		t.Fatalf("expected stack trace on error; entry=%s", buf.String())
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled")
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected no stack when warn stack disabled")
	}
}

func TestLoggerDebugFilteredAtInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug suppressed at info level, got %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", lvl)
	}
}

func TestLoggerCarriesEnvironmentAndEventID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "worker", Environment: "staging", Format: "json", Output: buf})

	log.Info(log.WithEventID(context.Background(), "evt-9"), "notifications created")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v (%s)", err, buf.String())
	}
	if entry["env"] != "staging" {
		t.Fatalf("expected env field; entry=%s", buf.String())
	}
	if entry["event_id"] != "evt-9" {
		t.Fatalf("expected event_id field; entry=%s", buf.String())
	}
}

func TestWithFieldsRedactsSensitiveKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Format: "json", Output: buf})

	ctx := log.WithFields(context.Background(), map[string]any{
		"verif-hash":     "shhh",
		"Account_Number": "0123456789",
		"amount":         "5000.00",
	})
	ctx = log.WithField(ctx, "authorization", "Bearer abc")
	log.Info(ctx, "webhook received")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v (%s)", err, buf.String())
	}
	for _, key := range []string{"verif-hash", "Account_Number", "authorization"} {
		if entry[key] != redacted {
			t.Fatalf("expected %s to be redacted; entry=%s", key, buf.String())
		}
	}
	if entry["amount"] != "5000.00" {
		t.Fatalf("expected amount to pass through; entry=%s", buf.String())
	}
}

func TestWithFieldsRendersInKeyOrder(t *testing.T) {
	render := func() string {
		buf := &bytes.Buffer{}
		log := New(Options{ServiceName: "api", Format: "json", Output: buf})
		ctx := log.WithFields(context.Background(), map[string]any{"c": 3, "a": 1, "b": 2, "d": 4})
		log.Info(ctx, "ordered")
		return buf.String()
	}
	first := render()
	a := bytes.Index([]byte(first), []byte(`"a":1`))
	d := bytes.Index([]byte(first), []byte(`"d":4`))
	if a < 0 || d < 0 || a > d {
		t.Fatalf("expected fields in key order; got %s", first)
	}
}

func TestLoggerToleratesNilContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Format: "json", Output: buf})
	//nolint:staticcheck // SA1012: exercising the nil ctx path
	ctx := log.WithRequestID(nil, "req-1")
	log.Info(ctx, "ok")
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"req-1"`)) {
		t.Fatalf("expected request_id; got %s", buf.String())
	}
}
