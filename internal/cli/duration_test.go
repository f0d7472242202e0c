package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "10", want: 10 * time.Second},
		{in: "10s", want: 10 * time.Second},
		{in: "5m", want: 5 * time.Minute},
		{in: "2h", want: 2 * time.Hour},
		{in: "", wantErr: true},
		{in: "10x", wantErr: true},
		{in: "-10s", wantErr: true},
		{in: "1.5s", wantErr: true},
	}

	for _, c := range cases {
		got, err := ParseDuration(c.in)
		if c.wantErr {
			assert.Errorf(t, err, "expected error for %q", c.in)
			continue
		}
		assert.NoErrorf(t, err, "unexpected error for %q", c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}
}
