package httpd

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// StaticServer resolves request paths against a public directory, with
// optional SPA fallback (spec.md §4.7 fallback steps 1-2).
type StaticServer struct {
	PublicDir string
	SPA       bool
}

// Serve attempts to resolve path under s.PublicDir. ok is false if no
// static file (and, in SPA mode, no index.html fallback) applies.
func (s *StaticServer) Serve(path string) (resp *Response, ok bool) {
	if s.PublicDir == "" {
		return nil, false
	}

	reqPath := path
	if reqPath == "" || reqPath == "/" {
		reqPath = "/index.html"
	}

	full := filepath.Join(s.PublicDir, filepath.Clean("/"+reqPath))
	if info, err := os.Stat(full); err == nil && info.Mode().IsRegular() {
		body, err := os.ReadFile(full)
		if err != nil {
			return nil, false
		}
		return NewResponse(200, body).WithHeader("Content-Type", staticMIME(full)), true
	}

	if s.SPA && !hasExtension(reqPath) {
		index := filepath.Join(s.PublicDir, "index.html")
		if body, err := os.ReadFile(index); err == nil {
			return NewResponse(200, body).WithHeader("Content-Type", "text/html; charset=utf-8"), true
		}
	}

	return nil, false
}

// hasExtension reports whether path's final segment contains a '.'
// (spec.md §4.7: "the request path's last segment contains no '.'").
func hasExtension(path string) bool {
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	return strings.Contains(base, ".")
}

// staticMIME derives a MIME type from a file extension, falling back to
// application/octet-stream for unknown extensions.
func staticMIME(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
