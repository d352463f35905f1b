package privacylog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSanitizeAttrRedactsSensitiveValues(t *testing.T) {
	for _, key := range []string{"token", "identity_token", "signature", "mnemonic", "seed_phrase", "api_secret"} {
		got := SanitizeAttr(slog.String(key, "super-private"))
		if got.Value.String() != redactedValue {
			t.Fatalf("expected %s to be redacted, got %q", key, got.Value.String())
		}
	}
}

func TestSanitizeAttrFingerprintsIdentifiers(t *testing.T) {
	got := SanitizeAttr(slog.String("did", "did:ethr:0xabc"))
	if got.Key != "did_fp" {
		t.Fatalf("expected the key renamed to did_fp, got %s", got.Key)
	}
	if !strings.HasPrefix(got.Value.String(), "fp_") {
		t.Fatalf("expected a fingerprint value, got %q", got.Value.String())
	}
	if strings.Contains(got.Value.String(), "0xabc") {
		t.Fatal("raw identifier leaked into the fingerprint")
	}

	again := SanitizeAttr(slog.String("did", "did:ethr:0xabc"))
	if again.Value.String() != got.Value.String() {
		t.Fatal("fingerprints must be stable within one process")
	}
}

func TestSanitizeAttrPassesOrdinaryFields(t *testing.T) {
	got := SanitizeAttr(slog.String("operation", "create"))
	if got.Key != "operation" || got.Value.String() != "create" {
		t.Fatalf("ordinary attribute was altered: %v", got)
	}
}

func TestFingerprintIDEmptyValue(t *testing.T) {
	if FingerprintID("  ") != "" {
		t.Fatal("blank identifiers must fingerprint to the empty string")
	}
}

func TestSanitizingHandlerEndToEnd(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil)))

	logger.Info("claim requested",
		"request_id", "req-123",
		"token", "eyJ.abc.def",
		"claim_type", "kyc")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("parse log line: %v", err)
	}
	if _, ok := line["request_id"]; ok {
		t.Fatal("raw request_id key must not appear")
	}
	fp, ok := line["request_id_fp"].(string)
	if !ok || !strings.HasPrefix(fp, "fp_") {
		t.Fatalf("expected a request_id fingerprint, got %v", line["request_id_fp"])
	}
	if line["token"] != redactedValue {
		t.Fatalf("token must be redacted, got %v", line["token"])
	}
	if line["claim_type"] != "kyc" {
		t.Fatalf("ordinary field lost: %v", line["claim_type"])
	}
	if strings.Contains(buf.String(), "req-123") || strings.Contains(buf.String(), "eyJ.abc.def") {
		t.Fatal("sensitive values leaked into the log output")
	}
}

func TestWrapHandlerNil(t *testing.T) {
	if WrapHandler(nil) != nil {
		t.Fatal("wrapping nil must stay nil")
	}
}
