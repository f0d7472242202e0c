package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/loadgen/internal/config"
)

func newJob(t *testing.T, rawURL string) config.RequestJob {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return config.RequestJob{
		URL:          u,
		Method:       config.MethodGET,
		StartInstant: time.Now(),
	}
}

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	job := newJob(t, srv.URL)
	metric := Execute(context.Background(), srv.Client(), job)

	assert.Equal(t, http.StatusOK, metric.StatusCode)
	assert.False(t, metric.IsError)
	assert.Equal(t, uint64(5), metric.BytesReceived)
	assert.Greater(t, metric.BytesSent, uint64(0))
}

func TestExecuteNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	job := newJob(t, srv.URL)
	metric := Execute(context.Background(), srv.Client(), job)

	assert.Equal(t, http.StatusInternalServerError, metric.StatusCode)
	assert.True(t, metric.IsError)
}

func TestExecuteTransportFailureYieldsZeroStatus(t *testing.T) {
	job := newJob(t, "http://127.0.0.1:1")
	metric := Execute(context.Background(), http.DefaultClient, job)

	assert.Equal(t, 0, metric.StatusCode)
	assert.True(t, metric.IsError)
}

func TestExecuteSendsHeadersAndBasicAuth(t *testing.T) {
	var gotHeader, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Test")
		user, _, _ := r.BasicAuth()
		gotUser = user
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	job := newJob(t, srv.URL)
	job.Headers = []config.Header{{Name: "X-Test", Value: "v"}}
	job.BasicAuth = &config.BasicAuth{Username: "alice", Password: "secret"}

	metric := Execute(context.Background(), srv.Client(), job)

	assert.False(t, metric.IsError)
	assert.Equal(t, "v", gotHeader)
	assert.Equal(t, "alice", gotUser)
}

func TestExecuteAppliesJobTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	job := newJob(t, srv.URL)
	job.Timeout = 5 * time.Millisecond

	metric := Execute(context.Background(), srv.Client(), job)

	assert.True(t, metric.IsError)
	assert.Equal(t, 0, metric.StatusCode)
}
