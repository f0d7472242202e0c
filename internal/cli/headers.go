package cli

import (
	"regexp"

	"github.com/pkg/errors"

	"github.com/bpowers/loadgen/internal/config"
)

// headerRegexp and authRegexp follow the teacher's original parsing
// approach: a compiled-once regexp per syntax rather than manual
// string-splitting, so malformed input produces one consistent error shape.
var (
	headerRegexp = regexp.MustCompile(`^([\w-]+):\s*(.*)$`)
	authRegexp   = regexp.MustCompile(`^([^:]+):(.+)$`)
)

// ParseHeader parses one -H "Name: Value" flag occurrence. Order and
// duplicates are the caller's responsibility to preserve across repeated
// flag occurrences; ParseHeader itself only validates a single pair.
func ParseHeader(raw string) (config.Header, error) {
	m := headerRegexp.FindStringSubmatch(raw)
	if m == nil {
		return config.Header{}, errors.Errorf("invalid header %q: expected \"Name: Value\"", raw)
	}
	return config.Header{Name: m[1], Value: m[2]}, nil
}

// ParseBasicAuth parses the -a user:password flag value.
func ParseBasicAuth(raw string) (*config.BasicAuth, error) {
	m := authRegexp.FindStringSubmatch(raw)
	if m == nil {
		return nil, errors.Errorf("invalid basic auth %q: expected user:password", raw)
	}
	return &config.BasicAuth{Username: m[1], Password: m[2]}, nil
}

// ParseMethod validates and normalizes the -m flag, case-insensitively.
func ParseMethod(raw string) (config.Method, error) {
	if raw == "" {
		return config.MethodGET, nil
	}
	m := config.Method(upperASCII(raw))
	for _, valid := range config.ValidMethods {
		if m == valid {
			return m, nil
		}
	}
	return "", errors.Errorf("unsupported method %q", raw)
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
