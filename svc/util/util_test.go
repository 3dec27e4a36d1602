package util

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenIDFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id, err := GenID(func(string) (bool, error) { return false, nil })
		if err != nil {
			t.Fatalf("GenID failed: %v", err)
		}
		if !ValidID(id) {
			t.Fatalf("GenID produced invalid id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestGenIDRetriesOnCollision(t *testing.T) {
	calls := 0
	id, err := GenID(func(string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	if err != nil {
		t.Fatalf("GenID failed: %v", err)
	}
	if calls != 3 || id == "" {
		t.Errorf("calls = %d, id = %q", calls, id)
	}
}

func TestGenIDGivesUp(t *testing.T) {
	_, err := GenID(func(string) (bool, error) { return true, nil })
	if !errors.Is(err, ErrIDCollision) {
		t.Fatalf("err = %v, want ErrIDCollision", err)
	}
}

func TestGenIDPropagatesLookupError(t *testing.T) {
	boom := errors.New("db down")
	_, err := GenID(func(string) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestValidID(t *testing.T) {
	tests := map[string]bool{
		"0000000000a":  true,
		"abcDEF12345":  true,
		"short":        false,
		"abcDEF1234!":  false,
		"abcDEF12345x": false,
		"../../etc/pa": false,
	}
	for id, want := range tests {
		if got := ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestRequestIDFrom(t *testing.T) {
	upstream := uuid.New().String()
	if got := RequestIDFrom(upstream); got != upstream {
		t.Errorf("upstream id not reused: %q", got)
	}
	got := RequestIDFrom("not-a-uuid\nforged")
	if _, err := uuid.Parse(got); err != nil || strings.Contains(got, "forged") {
		t.Errorf("forged id accepted: %q", got)
	}
	ctx := SetRequestID(context.Background(), upstream)
	if GetRequestID(ctx) != upstream {
		t.Error("request id not stored in context")
	}
	if GetRequestID(context.Background()) != "" {
		t.Error("expected empty request id on bare context")
	}
}

func TestRedact(t *testing.T) {
	if got := RedactIP("192.168.1.77:5000"); got != "192.168.1.0" {
		t.Errorf("RedactIP = %q", got)
	}
	if got := RedactIP("2001:db8::1"); got != "2001:db8::" {
		t.Errorf("RedactIP v6 = %q", got)
	}
	if got := RedactIP("garbage"); !strings.HasPrefix(got, "hash:") {
		t.Errorf("RedactIP garbage = %q", got)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", false)
	log.Info().Msg("hidden")
	log.Warn().Str("paste_id", "abc").Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(out, `"paste_id":"abc"`) {
		t.Errorf("structured field missing: %s", out)
	}
}
