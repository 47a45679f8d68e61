// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest represents one inbound request to the proxy endpoint.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Query  url.Values
	Header http.Header
	Body   io.ReadCloser
}

// UpstreamResponse is the raw response from the target site. The body is a
// live stream; ownership transfers to the consumer.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// RelayResult is the shaped response handed back to the HTTP layer. Exactly
// one of Body and Stream is set: rewritten and range-sliced branches buffer
// into Body, passthrough keeps the upstream stream.
type RelayResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Stream     io.ReadCloser
}
