package model

import (
	"bytes"
	"strconv"
	"time"
)

// FlexTime decodes the timestamp shapes the upstream backend is known to
// produce: RFC3339 strings, epoch seconds or milliseconds (as a number or a
// numeric string), or nothing at all. An unparsable value decodes to the
// zero time instead of failing, so a bad timestamp never drops a message.
type FlexTime struct {
	time.Time
}

// epoch values past this are treated as milliseconds.
const millisCutoff = int64(1e12)

// NewFlexTime wraps a time.Time.
func NewFlexTime(t time.Time) FlexTime {
	return FlexTime{Time: t}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *FlexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if b[0] == '"' {
		s := string(b[1 : len(b)-1])
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			t.Time = parsed
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed
			return nil
		}
		if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = fromEpoch(epoch)
			return nil
		}
		t.Time = time.Time{}
		return nil
	}

	if epoch, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		t.Time = fromEpoch(epoch)
		return nil
	}

	t.Time = time.Time{}
	return nil
}

// MarshalJSON implements json.Marshaler. Zero times marshal as null.
func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Format(time.RFC3339))), nil
}

func fromEpoch(epoch int64) time.Time {
	if epoch > millisCutoff {
		return time.UnixMilli(epoch)
	}
	return time.Unix(epoch, 0)
}
