package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"pastecap/pkg/domain"
)

type createReq struct {
	Content    json.RawMessage `json:"content"`
	TTLSeconds json.RawMessage `json:"ttl_seconds"`
	MaxViews   json.RawMessage `json:"max_views"`
}

// toParams turns the loosely typed request into CreateParams. Range checks
// (>= 1) are left to the service; only the JSON shape is enforced here.
func (req createReq) toParams() (domain.CreateParams, error) {
	var params domain.CreateParams
	if isNull(req.Content) {
		return params, domain.Invalid("content", "must be a non-empty string")
	}
	if err := json.Unmarshal(req.Content, &params.Content); err != nil {
		return params, domain.Invalid("content", "must be a non-empty string")
	}
	var err error
	if params.TTLSeconds, err = optInt("ttl_seconds", req.TTLSeconds); err != nil {
		return params, err
	}
	if params.MaxViews, err = optInt("max_views", req.MaxViews); err != nil {
		return params, err
	}
	return params, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

// optInt accepts an integral JSON number or a string holding one.
func optInt(field string, raw json.RawMessage) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}
	bad := domain.Invalid(field, "must be an integer >= 1")
	var s string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, bad
		}
		s = strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		s = string(raw)
	default:
		return nil, bad
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, bad
	}
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return nil, domain.Invalid(field, "is too large")
	}
	v := int64(f)
	return &v, nil
}
