// Package server provides the HTTP monitoring API: health check, live
// status of the capture/recognition loop, sanitized configuration and
// Prometheus metrics.
package server
