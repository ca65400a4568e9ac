// Package transport issues authenticated REST requests against a NetShark
// appliance and maps HTTP failures to a typed error the higher layers can
// inspect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Connector is the boundary the client library talks through. Implementations
// must decode 2xx JSON bodies into out (when out is non-nil) and return a
// *transport.Error for anything else.
type Connector interface {
	// JSONRequest issues a request with an optional JSON body and decodes the
	// JSON response into out.
	JSONRequest(ctx context.Context, method, path string, body any, params url.Values, out any) error

	// Download streams the response body for path into a local file. If
	// overwrite is false and the file already exists, Download fails without
	// contacting the server.
	Download(ctx context.Context, path string, params url.Values, filename string, overwrite bool) error

	// Host returns the appliance host this connector is bound to.
	Host() string
}

// Error is the transport-level failure type. The appliance reports errors as
// JSON bodies with an error_text field; Message carries that text when
// present, otherwise the raw body.
type Error struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.Path, e.Message, e.StatusCode)
}

// IsStatus reports whether err is a transport Error with the given HTTP
// status code.
func IsStatus(err error, code int) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == code
}

// IsNotFound reports whether err is a transport 404.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}
