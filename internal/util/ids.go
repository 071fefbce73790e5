// Package util provides UUID-based identifier generation for weblet's
// request and job IDs. Dynamic-registry handle IDs are sequential
// integers assigned by httpd.DynamicRegistry, not generated here.
package util

import "github.com/google/uuid"

// NewRequestID returns a new request-correlation identifier used for the
// X-Request-Id trace header and structured logging.
func NewRequestID() string {
	return uuid.NewString()
}

// NewJobID returns a new identifier for a dynamically submitted task.
func NewJobID() string {
	return uuid.NewString()
}
