// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/z5labs/httpsvc/httpmsg"
	"github.com/z5labs/httpsvc/internal/otelslog"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/server"
	"github.com/z5labs/httpsvc/streaming"

	"github.com/gorilla/websocket"
)

// maxBundleSize bounds the files read into one multipart bundle.
const maxBundleSize = 32 << 20

type fileHandler struct {
	root string
	log  *slog.Logger
}

func newFileHandler(root string, h slog.Handler) fileHandler {
	return fileHandler{root: root, log: otelslog.New(h)}
}

// Handle streams the file below root named by the path after /files/.
func (h fileHandler) Handle(req *httpmsg.Request, w server.Responder) {
	name, ok := localName(req.Path(), "/files/")
	if !ok {
		respondStatus(w, http.StatusNotFound)
		return
	}

	f, err := os.Open(filepath.Join(h.root, name))
	if err != nil {
		respondOpenError(w, err)
		return
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		respondStatus(w, http.StatusNotFound)
		return
	}

	header := make(http.Header)
	header.Set("Content-Type", contentType(name))
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	header.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))

	// the session closes f once it reaches a terminal state
	err = w.Respond(&httpmsg.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Entity: &httpmsg.StreamEntity{
			Body:   f,
			Length: info.Size(),
		},
	}, h.callback(req.Path()))
	if err != nil {
		f.Close()
	}
}

func (h fileHandler) callback(path string) streaming.ResponseCallback {
	return streaming.CallbackFuncs{
		Error: func(err error) {
			h.log.Warn("failed to stream file", slogfield.Path(path), slogfield.Error(err))
		},
	}
}

type bundleHandler struct {
	root string
	exec streaming.Executor
	log  *slog.Logger
}

// newBundleHandler returns a handler which reads bundle directories on exec.
func newBundleHandler(root string, exec streaming.Executor, h slog.Handler) bundleHandler {
	return bundleHandler{root: root, exec: exec, log: otelslog.New(h)}
}

// Handle responds with every regular file of the directory after
// /bundle/ as one part of a multipart/mixed body. The directory is read
// by the executor; a saturated or closed executor yields 503.
func (h bundleHandler) Handle(req *httpmsg.Request, w server.Responder) {
	name, ok := localName(req.Path(), "/bundle/")
	if !ok {
		name = "."
	}

	err := h.exec.Submit(func() {
		h.respond(req, w, filepath.Join(h.root, name))
	})
	if err != nil {
		h.log.Warn("failed to schedule bundle", slogfield.Path(req.Path()), slogfield.Error(err))
		respondStatus(w, http.StatusServiceUnavailable)
	}
}

func (h bundleHandler) respond(req *httpmsg.Request, w server.Responder, dir string) {
	parts, status, err := h.readBundle(dir)
	if err != nil {
		respondOpenError(w, err)
		return
	}
	if status != http.StatusOK {
		respondStatus(w, status)
		return
	}

	err = w.Respond(&httpmsg.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"multipart/mixed"}},
		Entity:     &httpmsg.MultipartEntity{Parts: parts},
	}, streaming.CallbackFuncs{
		Error: func(err error) {
			h.log.Warn("failed to send bundle", slogfield.Path(req.Path()), slogfield.Error(err))
		},
	})
	if err != nil {
		h.log.Error("failed to encode bundle", slogfield.Path(req.Path()), slogfield.Error(err))
	}
}

func (h bundleHandler) readBundle(dir string) ([]httpmsg.Part, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}

	var (
		parts []httpmsg.Part
		total int64
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			h.log.Warn("skipping unreadable file", slogfield.String("file", entry.Name()), slogfield.Error(err))
			continue
		}
		total += int64(len(b))
		if total > maxBundleSize {
			return nil, http.StatusRequestEntityTooLarge, nil
		}

		part := httpmsg.PartFromBytes(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())), b)
		part.FileName = entry.Name()
		part.ContentType = contentType(entry.Name())
		parts = append(parts, part)
	}
	return parts, http.StatusOK, nil
}

type echoSocket struct {
	path string
	log  *slog.Logger
}

func (s echoSocket) Path() string {
	return s.path
}

// ServeWebSocket echoes every message back until the peer goes away.
func (s echoSocket) ServeWebSocket(conn *websocket.Conn, req *httpmsg.Request) {
	defer conn.Close()

	for {
		typ, p, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed", slogfield.String("remote_addr", req.RemoteAddr), slogfield.Error(err))
			}
			return
		}
		err = conn.WriteMessage(typ, p)
		if err != nil {
			s.log.Warn("websocket write failed", slogfield.String("remote_addr", req.RemoteAddr), slogfield.Error(err))
			return
		}
	}
}

func localName(path, prefix string) (string, bool) {
	name, found := strings.CutPrefix(path, prefix)
	if !found || name == "" {
		return "", false
	}
	name = filepath.FromSlash(name)
	return name, filepath.IsLocal(name)
}

func contentType(name string) string {
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

func respondOpenError(w server.Responder, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		respondStatus(w, http.StatusNotFound)
	case errors.Is(err, fs.ErrPermission):
		respondStatus(w, http.StatusForbidden)
	default:
		respondStatus(w, http.StatusInternalServerError)
	}
}

func respondStatus(w server.Responder, code int) {
	w.Respond(&httpmsg.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Entity:     httpmsg.Bytes([]byte(http.StatusText(code))),
	}, nil)
}
