// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpmsg models the requests and responses exchanged by the
// server and the streaming engine.
package httpmsg

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Protocol is the transport scheme a server listens with.
type Protocol string

const (
	HTTP  Protocol = "http"
	HTTPS Protocol = "https"
)

// Version is an HTTP protocol version.
type Version struct {
	Major int
	Minor int
}

var (
	HTTP10 = Version{Major: 1, Minor: 0}
	HTTP11 = Version{Major: 1, Minor: 1}
)

// AtLeast reports whether v is the same as or newer than o.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	return v.Minor >= o.Minor
}

// String returns the request line form, e.g. "HTTP/1.1".
func (v Version) String() string {
	return fmt.Sprintf("HTTP/%d.%d", v.Major, v.Minor)
}

// Request is an inbound HTTP request.
type Request struct {
	Method  string
	URL     *url.URL
	Version Version
	Header  http.Header
	Body    io.ReadCloser

	RemoteAddr string
}

// FromHTTP converts a request parsed by net/http.
func FromHTTP(r *http.Request) *Request {
	return &Request{
		Method:     r.Method,
		URL:        r.URL,
		Version:    Version{Major: r.ProtoMajor, Minor: r.ProtoMinor},
		Header:     r.Header,
		Body:       r.Body,
		RemoteAddr: r.RemoteAddr,
	}
}

// Path returns the request path, "/" if empty.
func (r *Request) Path() string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// Response is an outbound HTTP response. A nil Entity means an empty body.
type Response struct {
	StatusCode int
	Header     http.Header
	Entity     Entity
}

// Entity is the body of a response.
//
// The concrete entity kinds are [*BytesEntity], [*StreamEntity] and
// [*MultipartEntity].
type Entity interface {
	isEntity()
}

// BytesEntity is a fully materialized body.
type BytesEntity struct {
	Bytes []byte
}

func (*BytesEntity) isEntity() {}

// Bytes returns an entity holding b.
func Bytes(b []byte) *BytesEntity {
	return &BytesEntity{Bytes: b}
}

// StreamEntity is a body read from an open stream. The receiver of the
// entity takes ownership of Body and closes it. A negative Length means
// the length is unknown.
type StreamEntity struct {
	Body   io.ReadCloser
	Length int64
}

func (*StreamEntity) isEntity() {}

// Stream returns an entity of unknown length backed by r.
func Stream(r io.Reader) *StreamEntity {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return &StreamEntity{Body: rc, Length: -1}
}

// MultipartEntity is a composite body of parts.
type MultipartEntity struct {
	Parts []Part
}

func (*MultipartEntity) isEntity() {}

// Part is one section of a multipart body. An empty FileName is omitted
// from the content disposition.
type Part struct {
	Name        string
	FileName    string
	ContentType string
	Header      http.Header
	Body        io.Reader
}

// PartFromBytes returns a part whose body is b.
func PartFromBytes(name string, b []byte) Part {
	return Part{Name: name, Body: bytes.NewReader(b)}
}
