//go:build noapmsql

package apmsql

// Available reports whether per-request query recording is compiled in.
const Available = false
