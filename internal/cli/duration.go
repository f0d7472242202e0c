package cli

import (
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// durationRegexp matches the grammar: one or more decimal digits, followed
// by an optional s/m/h unit. Anything else -- fractional, signed, or a
// different suffix -- is rejected.
var durationRegexp = regexp.MustCompile(`^([0-9]+)([smh]?)$`)

// ParseDuration implements the -z grammar from the CLI spec: bare digits
// are seconds, "0" means unbounded, and s/m/h suffixes scale accordingly.
func ParseDuration(s string) (time.Duration, error) {
	m := durationRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.Errorf("invalid duration %q: expected <digits>[s|m|h]", s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}

	var unit time.Duration
	switch m[2] {
	case "", "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	}

	return time.Duration(n) * unit, nil
}
