package config

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeUnits maps the accepted suffixes to their byte multipliers. Decimal
// (KB, MB) and binary (KiB, MiB) forms both work; lookups are
// case-insensitive.
var sizeUnits = map[string]int64{
	"":    1,
	"b":   1,
	"kb":  1000,
	"mb":  1000 * 1000,
	"gb":  1000 * 1000 * 1000,
	"tb":  1000 * 1000 * 1000 * 1000,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
}

// ParseSize parses human-readable sizes like "2GB", "512 MiB", or "1048576"
// into a byte count. The result must be positive.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty size")
	}

	split := len(s)
	for split > 0 && !isDigit(s[split-1]) {
		split--
	}
	numPart := strings.TrimSpace(s[:split])
	unitPart := strings.ToLower(strings.TrimSpace(s[split:]))

	mult, ok := sizeUnits[unitPart]
	if !ok {
		return 0, fmt.Errorf("config: unknown size unit %q in %q", unitPart, s)
	}

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("config: bad size %q: %w", s, err)
	}
	n := int64(value * float64(mult))
	if n <= 0 {
		return 0, fmt.Errorf("config: size %q must be positive", s)
	}
	return n, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
