package limits

import (
	"fmt"
	"strconv"
	"strings"
)

// Override is an operator-supplied replacement ceiling for one limit in one
// region, parsed from a "region/service/limit-name=value" line. Overrides
// are created once at startup and read-only thereafter.
type Override struct {
	Region    string
	Service   string
	LimitName string
	Value     int
}

// ParseOverrides parses a block of override lines. Lines without an equals
// sign, including blank lines, are skipped rather than rejected, so the
// block may carry comments or spacing. A line that does contain an equals
// sign must hold exactly a region/service/limit-name triple before it and
// an integer after it; anything else is a configuration error. Duplicate
// lines collapse to a single override.
func ParseOverrides(text string) ([]Override, error) {
	seen := make(map[Override]struct{})
	var overrides []Override

	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "=") {
			continue
		}

		key, rawValue, _ := strings.Cut(line, "=")
		parts := strings.Split(key, "/")
		if len(parts) != 3 {
			return nil, fmt.Errorf("override %q: want region/service/limit-name before \"=\", got %d segments", line, len(parts))
		}

		value, err := strconv.Atoi(strings.TrimSpace(rawValue))
		if err != nil {
			return nil, fmt.Errorf("override %q: value must be an integer: %w", line, err)
		}

		o := Override{
			Region:    parts[0],
			Service:   parts[1],
			LimitName: parts[2],
			Value:     value,
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		overrides = append(overrides, o)
	}

	return overrides, nil
}
