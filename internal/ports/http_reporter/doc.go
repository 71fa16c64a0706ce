// Package http_reporter provides an HTTP handler that exposes the most recent
// request profile reports as JSON, oldest first. It is meant for ad-hoc
// inspection while developing, mounted next to the application's routes.
package http_reporter
