// Copyright 2014 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the data model shared by every component of the
// load-generation engine: the immutable test configuration, the per-request
// work order, and the per-request outcome.
package config

import (
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Method is one of the HTTP verbs the engine knows how to issue.
type Method string

const (
	MethodGET     Method = "GET"
	MethodPOST    Method = "POST"
	MethodPUT     Method = "PUT"
	MethodDELETE  Method = "DELETE"
	MethodHEAD    Method = "HEAD"
	MethodOPTIONS Method = "OPTIONS"
)

// ValidMethods lists every method the CLI accepts, in the order they are
// tried when validating a -m flag.
var ValidMethods = []Method{MethodGET, MethodPOST, MethodPUT, MethodDELETE, MethodHEAD, MethodOPTIONS}

// Header is a single ordered (name, value) pair. Headers are added to the
// request in slice order and duplicates are kept; on the wire net/http
// writes distinct header names in sorted order, so the slice order is kept
// only among values of the same name.
type Header struct {
	Name  string
	Value string
}

// BasicAuth is HTTP basic authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// TestConfig is immutable once a run starts.
type TestConfig struct {
	URL       *url.URL
	Method    Method
	Headers   []Header
	Body      []byte
	BasicAuth *BasicAuth
	Proxy     string

	Requests   int
	Duration   time.Duration
	Concurrent int
	RateLimit  float64
	Timeout    time.Duration

	DisableCompression bool
	DisableKeepAlive   bool
	DisableRedirects   bool
}

// Validate checks the invariants TestConfig must satisfy before a run can
// start. It does not mutate c.
func (c *TestConfig) Validate() error {
	if c.URL == nil || c.URL.Scheme == "" || c.URL.Host == "" {
		return errors.New("url must be an absolute http(s) URL")
	}
	if c.URL.Scheme != "http" && c.URL.Scheme != "https" {
		return errors.Errorf("unsupported URL scheme %q", c.URL.Scheme)
	}
	validMethod := false
	for _, m := range ValidMethods {
		if c.Method == m {
			validMethod = true
			break
		}
	}
	if !validMethod {
		return errors.Errorf("unsupported method %q", c.Method)
	}
	if c.Requests < 0 {
		return errors.New("requests must be >= 0")
	}
	if c.Duration < 0 {
		return errors.New("duration must be >= 0")
	}
	if c.Concurrent <= 0 {
		return errors.New("concurrent must be > 0")
	}
	if c.RateLimit < 0 {
		return errors.New("rate_limit must be >= 0")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	return nil
}

// RequestJob is the per-request work order the driver hands to a worker. It
// carries the driver's monotonic start instant so workers can compute
// timestamps without sharing a clock.
type RequestJob struct {
	URL          *url.URL
	Method       Method
	Headers      []Header
	Body         []byte
	BasicAuth    *BasicAuth
	Timeout      time.Duration
	StartInstant time.Time
}

// Clone returns a deep-enough copy of the job: headers and body are copied
// so a worker can mutate its own view (e.g. when the HTTP client clones the
// request internally) without affecting the next job drawn from the queue.
func (j RequestJob) Clone() RequestJob {
	headers := make([]Header, len(j.Headers))
	copy(headers, j.Headers)
	var body []byte
	if j.Body != nil {
		body = make([]byte, len(j.Body))
		copy(body, j.Body)
	}
	j.Headers = headers
	j.Body = body
	return j
}

// RequestMetric is the outcome of exactly one HTTP transaction, whether it
// succeeded, failed at the HTTP level, or never got a response.
type RequestMetric struct {
	TimestampS    float64
	LatencyMS     float64
	StatusCode    int
	IsError       bool
	BytesSent     uint64
	BytesReceived uint64
}

// NewJob builds a RequestJob from a TestConfig for a run whose monotonic
// time origin is start.
func NewJob(c *TestConfig, start time.Time) RequestJob {
	return RequestJob{
		URL:          c.URL,
		Method:       c.Method,
		Headers:      c.Headers,
		Body:         c.Body,
		BasicAuth:    c.BasicAuth,
		Timeout:      c.Timeout,
		StartInstant: start,
	}.Clone()
}
