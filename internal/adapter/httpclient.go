package adapter

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient builds an *http.Client tuned for many short-lived
// connections to session containers: bounded idle connections per host,
// aggressive idle timeout, and no overall client timeout since individual
// calls pass their own context deadline (set by the capability's timeout
// parameter, not a blanket client-wide limit).
//
// This mirrors the pooled-connection-manager role the original's
// HTTPClientManager plays, adapted to Go's transport-level pooling instead
// of an explicit connector object.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Transport: transport}
}
