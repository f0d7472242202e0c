package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/loadgen/internal/config"
)

func TestParseHeaderValid(t *testing.T) {
	h, err := ParseHeader("X-Request-Id: abc-123")
	require.NoError(t, err)
	assert.Equal(t, config.Header{Name: "X-Request-Id", Value: "abc-123"}, h)
}

func TestParseHeaderAllowsEmptyValue(t *testing.T) {
	h, err := ParseHeader("X-Empty:")
	require.NoError(t, err)
	assert.Equal(t, "X-Empty", h.Name)
	assert.Equal(t, "", h.Value)
}

func TestParseHeaderRejectsMissingColon(t *testing.T) {
	_, err := ParseHeader("not-a-header")
	assert.Error(t, err)
}

func TestParseBasicAuthValid(t *testing.T) {
	auth, err := ParseBasicAuth("alice:hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", auth.Username)
	assert.Equal(t, "hunter2", auth.Password)
}

func TestParseBasicAuthRejectsMissingColon(t *testing.T) {
	_, err := ParseBasicAuth("alice")
	assert.Error(t, err)
}

func TestParseMethodDefaultsToGet(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, config.MethodGET, m)
}

func TestParseMethodCaseInsensitive(t *testing.T) {
	m, err := ParseMethod("post")
	require.NoError(t, err)
	assert.Equal(t, config.MethodPOST, m)
}

func TestParseMethodRejectsUnsupported(t *testing.T) {
	_, err := ParseMethod("PATCH")
	assert.Error(t, err)
}
