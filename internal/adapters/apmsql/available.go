//go:build !noapmsql

package apmsql

// Available reports whether per-request query recording is compiled in.
// Build with the noapmsql tag to strip it.
const Available = true
