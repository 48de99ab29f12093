package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Scalar is a JSON value that may arrive as a string, number, bool or null.
// Numbers are normalized so 1, 1.0 and "1" compare equal.
type Scalar string

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	switch b[0] {
	case '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case '{', '[':
		*s = Scalar(b)
	default:
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			*s = Scalar(strconv.FormatFloat(f, 'f', -1, 64))
			return nil
		}
		*s = Scalar(b)
	}
	return nil
}

func (s Scalar) String() string { return string(s) }

// Timestamp holds seconds since epoch. It accepts numbers, numeric strings,
// millisecond values and RFC3339 strings.
type Timestamp float64

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = 0
		return nil
	}
	if b[0] == '{' {
		// extended JSON dates: {"$date": "..."} or {"$date": {"$numberLong": "..."}}
		var wrapped struct {
			Date json.RawMessage `json:"$date"`
			Long string          `json:"$numberLong"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		if wrapped.Long != "" {
			return t.UnmarshalJSON([]byte(strconv.Quote(wrapped.Long)))
		}
		if len(wrapped.Date) == 0 {
			return fmt.Errorf("invalid timestamp %s", b)
		}
		return t.UnmarshalJSON(wrapped.Date)
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*t = 0
			return nil
		}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		// millisecond epoch values
		if f > 1e12 {
			f /= 1000
		}
		*t = Timestamp(f)
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			*t = Timestamp(float64(parsed.UnixNano()) / 1e9)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

// Time converts to a UTC time; zero timestamps give the zero time.
func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(float64(t))
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func (t Timestamp) IsZero() bool { return t == 0 }

// FlexInt is an optional integer that may be encoded as a number or a string.
type FlexInt struct {
	N     int
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var s Scalar
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = FlexInt{}
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		// non-numeric values are treated as absent
		*f = FlexInt{}
		return nil
	}
	*f = FlexInt{N: int(v), Valid: true}
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(f.N)), nil
}

// FlexBool accepts true/false, "true"/"yes"/"1" and 0/1.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	var s Scalar
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "true", "yes", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// StringList decodes a JSON array, a JSON string holding an array, or a
// comma separated string into a list of trimmed, non-empty strings.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}

	var items []any
	if err := json.Unmarshal(b, &items); err == nil {
		*l = cleanList(items)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("invalid string list: %w", err)
	}
	str = strings.TrimSpace(str)
	if strings.HasPrefix(str, "[") {
		if err := json.Unmarshal([]byte(str), &items); err == nil {
			*l = cleanList(items)
			return nil
		}
	}
	var parts []any
	for _, p := range strings.Split(str, ",") {
		parts = append(parts, p)
	}
	*l = cleanList(parts)
	return nil
}

func cleanList(items []any) StringList {
	out := make(StringList, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(it))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
