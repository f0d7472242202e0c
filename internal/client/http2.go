package client

import (
	"net/http"

	"golang.org/x/net/http2"
)

// configureHTTP2 upgrades tr to negotiate HTTP/2, mirroring the teacher's
// runWorkers transport setup. Only reached when useHTTP2 is true.
func configureHTTP2(tr *http.Transport) error {
	return http2.ConfigureTransport(tr)
}
