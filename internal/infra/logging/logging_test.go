package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWith_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "01HX")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithReferralID(ctx, "ref-9")

	l := With(ctx, &base)
	l.Info().Msg("hello")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	for k, want := range map[string]string{"trace_id": "01HX", "user_id": "user-1", "referral_id": "ref-9"} {
		if got[k] != want {
			t.Errorf("expected %s=%s, got %v", k, want, got[k])
		}
	}
	if TraceID(ctx) != "01HX" {
		t.Errorf("expected TraceID to read back the trace id")
	}
}

func TestRedact(t *testing.T) {
	if Redact("203.0.113.77", false) != "203....77" {
		t.Errorf("unexpected redaction: %s", Redact("203.0.113.77", false))
	}
	if Redact("short", false) != "***" {
		t.Error("short values must be fully hidden")
	}
	if Redact("203.0.113.77", true) != "203.0.113.77" {
		t.Error("dev mode must not redact")
	}
}
