package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errBadPosition = errors.New("commands: unparseable position")

// parsePosition parses the position formats users type into /seek and
// friends: bare seconds ("90"), clock notation ("1:30", "1:02:03"), and Go
// durations ("90s", "1m30s"). Negative positions are rejected.
func parsePosition(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errBadPosition
	}

	if strings.Contains(s, ":") {
		return parseClock(s)
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, errBadPosition
		}
		return time.Duration(n) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errBadPosition
	}
	return d, nil
}

// parseClock parses M:SS and H:MM:SS. Only the leading field may exceed 59.
func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errBadPosition
	}

	var total time.Duration
	for n, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: %q", errBadPosition, s)
		}
		if n > 0 && v > 59 {
			return 0, fmt.Errorf("%w: %q", errBadPosition, s)
		}
		total = total*60 + time.Duration(v)*time.Second
	}
	return total, nil
}
