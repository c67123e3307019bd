package environ

import (
	"os"
	"strconv"
	"strings"
	"time"

	"k8s.io/kube-openapi/pkg/validation/strfmt"
)

func lookup[T any](key string, fallback T, parse func(string) (T, error)) T {
	if value, ok := os.LookupEnv(key); ok {
		if v, err := parse(value); err == nil {
			return v
		}
	}
	return fallback
}

func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	return lookup(key, fallback, strconv.Atoi)
}

func GetInt64(key string, fallback int64) int64 {
	return lookup(key, fallback, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

func GetFloat64(key string, fallback float64) float64 {
	return lookup(key, fallback, func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	})
}

// GetBool accepts the forms understood by strconv.ParseBool. Unparsable
// values fall back.
func GetBool(key string, fallback bool) bool {
	return lookup(key, fallback, strconv.ParseBool)
}

// GetDuration accepts Go durations as well as day/week suffixes ("1d").
func GetDuration(key string, fallback time.Duration) time.Duration {
	return lookup(key, fallback, func(s string) (time.Duration, error) {
		return strfmt.ParseDuration(s)
	})
}

// Has reports whether key is set in the environment.
func Has(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

// KeyFor maps a dotted option path to its environment variable name under
// prefix: KeyFor("TRACE_CLAW", "collector.interval_seconds") returns
// "TRACE_CLAW_COLLECTOR_INTERVAL_SECONDS".
func KeyFor(prefix, path string) string {
	key := strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}
