// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package streaming

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/z5labs/httpsvc/httpmsg"
)

type framing int

const (
	framingNone framing = iota
	framingIdentity
	framingChunked
	framingClose
)

func (f framing) String() string {
	switch f {
	case framingIdentity:
		return "identity"
	case framingChunked:
		return "chunked"
	case framingClose:
		return "close"
	default:
		return "none"
	}
}

// outbound is the response metadata computed before any byte is written.
type outbound struct {
	header    http.Header
	framing   framing
	length    int64
	keepAlive bool
}

// bodyAllowed reports whether a response to req with the given status
// may carry a body.
func bodyAllowed(req *httpmsg.Request, status int) bool {
	if req != nil && req.Method == http.MethodHead {
		return false
	}
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// connectionToken returns the first recognised token of the Connection
// header, if any.
func connectionToken(h http.Header) string {
	for _, v := range h.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok == "close" || tok == "keep-alive" {
				return tok
			}
		}
	}
	return ""
}

// prepare decides framing and keep-alive for a response. A Connection
// header on the response overrides the exchange default. A body of
// unknown length on an HTTP/1.0 request is delimited by closing the
// connection.
func prepare(req *httpmsg.Request, resp *httpmsg.Response, length int64, exchangeKeepAlive bool) outbound {
	h := resp.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}

	version := httpmsg.HTTP11
	if req != nil {
		version = req.Version
	}

	out := outbound{header: h, length: length}
	switch connectionToken(h) {
	case "close":
		out.keepAlive = false
	case "keep-alive":
		out.keepAlive = true
	default:
		out.keepAlive = exchangeKeepAlive
	}

	if cl := h.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err == nil && n >= 0 {
			out.length = n
		} else {
			h.Del("Content-Length")
		}
	}

	switch {
	case !bodyAllowed(req, resp.StatusCode):
		out.framing = framingNone
		if req == nil || req.Method != http.MethodHead {
			h.Del("Content-Length")
		} else if out.length >= 0 && h.Get("Content-Length") == "" {
			h.Set("Content-Length", strconv.FormatInt(out.length, 10))
		}
		h.Del("Transfer-Encoding")
	case out.length >= 0:
		out.framing = framingIdentity
		h.Set("Content-Length", strconv.FormatInt(out.length, 10))
		h.Del("Transfer-Encoding")
	case version.AtLeast(httpmsg.HTTP11):
		out.framing = framingChunked
		h.Set("Transfer-Encoding", "chunked")
	default:
		out.framing = framingClose
		out.keepAlive = false
		h.Del("Transfer-Encoding")
	}

	switch {
	case !out.keepAlive:
		h.Set("Connection", "close")
	case !version.AtLeast(httpmsg.HTTP11):
		h.Set("Connection", "keep-alive")
	case connectionToken(h) == "":
	default:
		h.Set("Connection", "keep-alive")
	}
	return out
}

// writeHead serializes the status line and header of a response.
func writeHead(buf *bytes.Buffer, status int, h http.Header, now time.Time) {
	text := http.StatusText(status)
	if text == "" {
		text = "status code " + strconv.Itoa(status)
	}
	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(status))
	buf.WriteByte(' ')
	buf.WriteString(text)
	buf.WriteString("\r\n")

	if h.Get("Date") == "" {
		buf.WriteString("Date: ")
		buf.WriteString(now.UTC().Format(http.TimeFormat))
		buf.WriteString("\r\n")
	}
	h.Write(buf)
	buf.WriteString("\r\n")
}

// writeChunk appends p to buf with the framing's encoding.
func writeChunk(buf *bytes.Buffer, f framing, p []byte) {
	if f != framingChunked {
		buf.Write(p)
		return
	}
	buf.WriteString(strconv.FormatInt(int64(len(p)), 16))
	buf.WriteString("\r\n")
	buf.Write(p)
	buf.WriteString("\r\n")
}

// writeTrailer appends the end of body marker, if the framing has one.
func writeTrailer(buf *bytes.Buffer, f framing) {
	if f == framingChunked {
		buf.WriteString("0\r\n\r\n")
	}
}
