package domain

import (
	"time"
)

// Paste is the stored record. Everything except Views is fixed at creation.
type Paste struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	MaxViews  *int64     `json:"max_views"`
	Views     int64      `json:"views"`
}

// ExpiredAt reports whether the paste is past its deadline at now.
// A paste is still readable at the exact instant of expiry.
func (p *Paste) ExpiredAt(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

func (p *Paste) Exhausted() bool {
	return p.MaxViews != nil && p.Views >= *p.MaxViews
}

// RemainingViews is nil for pastes without a view limit.
func (p *Paste) RemainingViews() *int64 {
	if p.MaxViews == nil {
		return nil
	}
	left := *p.MaxViews - p.Views
	if left < 0 {
		left = 0
	}
	return &left
}

type CreateParams struct {
	Content    string
	TTLSeconds *int64
	MaxViews   *int64
}

// View is what a successful read hands back to the caller.
type View struct {
	ID             string
	Content        string
	RemainingViews *int64
	ExpiresAt      *time.Time
}

type RenderMode int

const (
	RenderJSON RenderMode = iota
	RenderHTML
)

func (m RenderMode) String() string {
	switch m {
	case RenderJSON:
		return "json"
	case RenderHTML:
		return "html"
	}
	return "unknown"
}

type Rendered struct {
	Body        []byte
	ContentType string
}
