package webapp

import (
	"bytes"
	"net/http"
	"time"
)

// Response is the buffered outcome of a request. Handlers write into it as
// an http.ResponseWriter; after-request hooks may inspect or replace it
// before it is written to the client.
type Response struct {
	Request    *http.Request
	StatusCode int
	Body       bytes.Buffer
	// Duration is the time spent in the entry point.
	Duration time.Duration

	header      http.Header
	wroteHeader bool
}

func newResponse(r *http.Request) *Response {
	return &Response{
		Request:    r,
		StatusCode: http.StatusOK,
		header:     make(http.Header),
	}
}

func (resp *Response) Header() http.Header {
	return resp.header
}

func (resp *Response) WriteHeader(code int) {
	if resp.wroteHeader {
		return
	}
	resp.wroteHeader = true
	resp.StatusCode = code
}

func (resp *Response) Write(b []byte) (int, error) {
	resp.WriteHeader(http.StatusOK)
	return resp.Body.Write(b)
}

// writeTo sends the buffered response to w.
func (resp *Response) writeTo(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vs := range resp.header {
		dst[k] = append([]string(nil), vs...)
	}
	w.WriteHeader(resp.StatusCode)
	_, err := w.Write(resp.Body.Bytes())
	return err
}
