package jsonl

import (
	"math"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime reads a record timestamp: an ISO-8601 string, or a number of
// seconds since the epoch. Numbers too large to be seconds are taken as
// milliseconds. Timestamps without a zone are UTC.
func ParseTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f), nil
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, errors.Errorf("unrecognised timestamp %q", t)
	case float64:
		return fromEpoch(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "parsing timestamp %q", t.String())
		}
		return fromEpoch(f), nil
	case int64:
		return fromEpoch(float64(t)), nil
	case nil:
		return time.Time{}, errors.New("missing timestamp")
	default:
		return time.Time{}, errors.Errorf("unsupported timestamp type %T", v)
	}
}

func fromEpoch(f float64) time.Time {
	if math.Abs(f) >= 1e12 {
		f /= 1000
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
