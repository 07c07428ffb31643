// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package httpsig

import (
	"net/http"
	"sort"
	"strings"
)

// HeaderField is a single request header. Names compare case-insensitively.
type HeaderField struct {
	Name  string
	Value string
}

// Request is the read-only view of an inbound request that verification needs.
type Request interface {
	Method() string
	// Path is the decoded request path.
	Path() string
	// Query returns the raw query string and whether the request had one.
	Query() (string, bool)
	// Headers returns the headers in the order they were received.
	Headers() []HeaderField
}

// LookupHeader returns the value of the first header with the given name.
func LookupHeader(r Request, name string) (string, bool) {
	for _, h := range r.Headers() {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

type message struct {
	method   string
	path     string
	query    string
	hasQuery bool
	headers  []HeaderField
}

// NewMessage builds a Request held in memory. A nil query means the request has none.
func NewMessage(method, path string, query *string, headers ...HeaderField) Request {
	m := &message{
		method:  method,
		path:    path,
		headers: append([]HeaderField(nil), headers...),
	}
	if query != nil {
		m.query, m.hasQuery = *query, true
	}
	return m
}

func (m *message) Method() string         { return m.method }
func (m *message) Path() string           { return m.path }
func (m *message) Query() (string, bool)  { return m.query, m.hasQuery }
func (m *message) Headers() []HeaderField { return m.headers }

type httpRequest struct {
	r       *http.Request
	headers []HeaderField
}

// NewRequest adapts a net/http request. Header names are visited in sorted order; values of
// a repeated header keep the order in which they were received.
func NewRequest(r *http.Request) Request {
	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	var headers []HeaderField
	for _, name := range names {
		for _, v := range r.Header[name] {
			headers = append(headers, HeaderField{Name: strings.ToLower(name), Value: v})
		}
	}
	if r.Host != "" && r.Header.Get("Host") == "" {
		headers = append(headers, HeaderField{Name: "host", Value: r.Host})
	}
	return &httpRequest{r: r, headers: headers}
}

func (h *httpRequest) Method() string { return h.r.Method }

func (h *httpRequest) Path() string { return h.r.URL.Path }

func (h *httpRequest) Query() (string, bool) {
	return h.r.URL.RawQuery, h.r.URL.RawQuery != "" || h.r.URL.ForceQuery
}

func (h *httpRequest) Headers() []HeaderField { return h.headers }
