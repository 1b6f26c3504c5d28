package engine

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var errBadTimestamp = errors.New("malformed timestamp")

// parseTimestamp turns a colon-delimited time string ("ss", "mm:ss" or
// "hh:mm:ss") into a duration. Fields beyond hours are dropped; out of
// range fields are clamped (hours to 23, minutes and seconds to 59)
// rather than rejected. Only genuinely non-numeric input fails.
func parseTimestamp(stamp string) (time.Duration, error) {
	fields := strings.Split(stamp, ":")
	if len(fields) > 3 {
		fields = fields[len(fields)-3:]
	}

	vals := make([]int, 0, 3)
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || n < 0 {
			return 0, errBadTimestamp
		}
		vals = append(vals, n)
	}

	// Pad to hh:mm:ss.
	for len(vals) < 3 {
		vals = append([]int{0}, vals...)
	}

	h, m, s := min(vals[0], 23), min(vals[1], 59), min(vals[2], 59)
	return time.Duration(h*3600+m*60+s) * time.Second, nil
}
