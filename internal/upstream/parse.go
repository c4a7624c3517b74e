package upstream

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Float is a strict numeric field: distinguishes value / missing / invalid.
// The upstream emits numbers sometimes as JSON numbers and sometimes as quoted
// strings; anything else (or a non-finite value) is a parse error rather than
// a silently dropped field.
type Float struct {
	Value float64
	Set   bool
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = Float{}
		return nil
	}
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		if s == "" {
			*f = Float{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric field %s: %w", string(data), err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite numeric field %s", string(data))
	}
	*f = Float{Value: v, Set: true}
	return nil
}

// Timestamp is a strict trade timestamp normalized to Unix milliseconds.
// The upstream mixes second and millisecond precision; values below 1e12 are
// treated as seconds.
type Timestamp struct {
	Ms  int64
	Set bool
}

const msThreshold = int64(1e12)

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var f Float
	if err := f.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	if !f.Set {
		*t = Timestamp{}
		return nil
	}
	if f.Value < 0 {
		return fmt.Errorf("negative timestamp %v", f.Value)
	}
	ms := int64(f.Value)
	if ms < msThreshold {
		ms *= 1000
	}
	*t = Timestamp{Ms: ms, Set: true}
	return nil
}
