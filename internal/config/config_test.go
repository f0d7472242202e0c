package config

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *TestConfig {
	t.Helper()
	u, err := url.Parse("http://example.com/path")
	require.NoError(t, err)
	return &TestConfig{
		URL:        u,
		Method:     MethodGET,
		Requests:   200,
		Concurrent: 50,
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingURL(t *testing.T) {
	cfg := validConfig(t)
	cfg.URL = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonHTTPScheme(t *testing.T) {
	cfg := validConfig(t)
	u, err := url.Parse("ftp://example.com")
	require.NoError(t, err)
	cfg.URL = u
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnsupportedMethod(t *testing.T) {
	cfg := validConfig(t)
	cfg.Method = "PATCH"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	cfg := validConfig(t)
	cfg.Concurrent = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeFields(t *testing.T) {
	cases := []func(*TestConfig){
		func(c *TestConfig) { c.Requests = -1 },
		func(c *TestConfig) { c.Duration = -time.Second },
		func(c *TestConfig) { c.RateLimit = -1 },
		func(c *TestConfig) { c.Timeout = -time.Second },
	}
	for _, mutate := range cases {
		cfg := validConfig(t)
		mutate(cfg)
		assert.Error(t, cfg.Validate())
	}
}

func TestNewJobCopiesConfigFields(t *testing.T) {
	cfg := validConfig(t)
	cfg.Headers = []Header{{Name: "X-Test", Value: "1"}}
	cfg.Body = []byte("payload")
	start := time.Now()

	job := NewJob(cfg, start)

	assert.Equal(t, cfg.URL, job.URL)
	assert.Equal(t, cfg.Method, job.Method)
	assert.Equal(t, cfg.Headers, job.Headers)
	assert.Equal(t, cfg.Body, job.Body)
	assert.Equal(t, start, job.StartInstant)
}

func TestJobCloneIsIndependentOfSource(t *testing.T) {
	job := RequestJob{
		Headers: []Header{{Name: "A", Value: "1"}},
		Body:    []byte("hello"),
	}
	clone := job.Clone()

	clone.Headers[0].Value = "mutated"
	clone.Body[0] = 'H'

	assert.Equal(t, "1", job.Headers[0].Value)
	assert.Equal(t, byte('h'), job.Body[0])
}
