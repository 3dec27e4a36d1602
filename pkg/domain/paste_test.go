package domain

import (
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestPaste_ExpiredAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry", nil, false},
		{"future", ptr(now.Add(time.Second)), false},
		{"exact instant", ptr(now), false},
		{"past", ptr(now.Add(-time.Millisecond)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Paste{ExpiresAt: tt.expiresAt}
			if got := p.ExpiredAt(now); got != tt.want {
				t.Errorf("ExpiredAt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPaste_Exhausted(t *testing.T) {
	if (&Paste{Views: 100}).Exhausted() {
		t.Error("paste without view limit should never be exhausted")
	}
	if (&Paste{MaxViews: ptr(int64(2)), Views: 1}).Exhausted() {
		t.Error("paste with views below limit reported exhausted")
	}
	if !(&Paste{MaxViews: ptr(int64(2)), Views: 2}).Exhausted() {
		t.Error("paste at limit should be exhausted")
	}
}

func TestPaste_RemainingViews(t *testing.T) {
	if got := (&Paste{Views: 3}).RemainingViews(); got != nil {
		t.Errorf("unlimited paste: got %d, want nil", *got)
	}
	got := (&Paste{MaxViews: ptr(int64(2)), Views: 1}).RemainingViews()
	if got == nil || *got != 1 {
		t.Errorf("got %v, want 1", got)
	}
	got = (&Paste{MaxViews: ptr(int64(2)), Views: 5}).RemainingViews()
	if got == nil || *got != 0 {
		t.Errorf("over-consumed paste should clamp to 0, got %v", got)
	}
}

func TestRenderMode_String(t *testing.T) {
	if RenderJSON.String() != "json" || RenderHTML.String() != "html" {
		t.Errorf("unexpected names: %s %s", RenderJSON, RenderHTML)
	}
}
