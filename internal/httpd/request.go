// Package httpd implements the weblet HTTP core: request ingestion,
// routing, static/SPA fallback, dynamic handler dispatch, and response
// serialization over the HTTP/1.1 subset described by spec.md §4.6-§4.11.
package httpd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v5"
)

// ErrBadRequest, ErrNotFound and ErrInternal map onto spec.md §7's
// HttpBadRequest/HttpNotFound/HttpInternal error kinds.
var (
	ErrBadRequest = errors.New("httpd: bad request")
	ErrNotFound   = errors.New("httpd: not found")
	ErrInternal   = errors.New("httpd: internal error")
)

// maxHeaderBytes is the hard cap on the header block (spec.md §4.6).
const maxHeaderBytes = 16 * 1024

// UploadedFile is one multipart part carrying a filename attribute.
type UploadedFile struct {
	Field       string
	Filename    string
	ContentType string
	Bytes       []byte
}

// Request is the parsed view of one incoming connection's HTTP request
// (spec.md §3 "Request").
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Header  map[string]string
	Cookies map[string]string
	Form    map[string]string
	Files   []UploadedFile
	Raw     []byte
	Body    string

	// Params is populated by the router after a successful match
	// (spec.md §4.7); it is nil until routing has run.
	Params map[string]string
}

// ParseRequest reads one request off r: request line, headers up to the
// blank line (capped at maxHeaderBytes), then a Content-Length-driven
// body read with bounded retries, then body decoding by Content-Type.
func ParseRequest(ctx context.Context, r *bufio.Reader) (*Request, error) {
	headerBuf, err := readHeaderBlock(r)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(headerBuf), "\r\n")
	if len(lines) < 1 {
		return nil, fmt.Errorf("%w: empty request", ErrBadRequest)
	}

	reqLine := strings.SplitN(lines[0], " ", 3)
	if len(reqLine) != 3 {
		return nil, fmt.Errorf("%w: malformed request line", ErrBadRequest)
	}
	method, target := reqLine[0], reqLine[1]

	rawPath, rawQuery := target, ""
	if i := strings.IndexByte(target, '?'); i >= 0 {
		rawPath, rawQuery = target[:i], target[i+1:]
	}
	query, _ := url.ParseQuery(rawQuery)

	header := make(map[string]string)
	for _, l := range lines[1 : len(lines)-2] {
		if l == "" {
			continue
		}
		kv := strings.SplitN(l, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: malformed header %q", ErrBadRequest, l)
		}
		header[strings.TrimSpace(kv[0])] = strings.TrimSpace(strings.TrimRight(kv[1], "\r"))
	}

	cookies := map[string]string{}
	if raw, ok := lookupHeader(header, "Cookie"); ok {
		for _, piece := range strings.Split(raw, ";") {
			kv := strings.SplitN(piece, "=", 2)
			if len(kv) != 2 {
				continue
			}
			cookies[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	clRaw, hasCL := lookupHeader(header, "Content-Length")
	if !hasCL {
		return &Request{
			Method: method, Path: rawPath, Query: query,
			Header: header, Cookies: cookies,
			Form: map[string]string{},
		}, nil
	}
	contentLength, err := strconv.Atoi(strings.TrimSpace(clRaw))
	if err != nil || contentLength < 0 {
		return nil, fmt.Errorf("%w: bad Content-Length", ErrBadRequest)
	}

	body, err := readBody(ctx, r, contentLength)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method: method, Path: rawPath, Query: query,
		Header: header, Cookies: cookies,
		Form: map[string]string{}, Raw: body, Body: string(body),
	}

	contentType, _ := lookupHeader(header, "Content-Type")
	if err := decodeBody(req, contentType, body); err != nil {
		return nil, err
	}
	return req, nil
}

func lookupHeader(h map[string]string, name string) (string, bool) {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// readHeaderBlock reads bytes until "\r\n\r\n" is seen, capped at
// maxHeaderBytes (spec.md §4.6).
func readHeaderBlock(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		buf.WriteByte(b)
		if buf.Len() > maxHeaderBytes {
			return nil, fmt.Errorf("%w: headers too large or malformed", ErrBadRequest)
		}
		if bytes.HasSuffix(buf.Bytes(), []byte("\r\n\r\n")) {
			return buf.Bytes(), nil
		}
	}
}

// readBody reads exactly n bytes, retrying short reads with bounded
// backoff until the advertised length is obtained or the peer closes
// early (spec.md §4.6).
func readBody(ctx context.Context, r *bufio.Reader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	body := make([]byte, 0, n)
	op := func() (int, error) {
		remaining := n - len(body)
		if remaining == 0 {
			return 0, nil
		}
		chunk := make([]byte, remaining)
		read, err := r.Read(chunk)
		if read > 0 {
			body = append(body, chunk[:read]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The peer closed (or the stream ended) before the
				// advertised length was reached: not worth retrying.
				return 0, backoff.Permanent(fmt.Errorf("%w: incomplete body", ErrBadRequest))
			}
			return 0, backoff.Permanent(err)
		}
		if len(body) < n {
			return 0, fmt.Errorf("retry: %d/%d bytes read", len(body), n)
		}
		return len(body), nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(20),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		if len(body) < n {
			return nil, fmt.Errorf("%w: incomplete body", ErrBadRequest)
		}
		return nil, err
	}
	return body, nil
}

// decodeBody populates Form/Files per Content-Type (spec.md §4.6). A
// multipart body with no boundary parameter is malformed and rejected
// with ErrBadRequest rather than silently treated as an empty form.
func decodeBody(req *Request, contentType string, body []byte) error {
	mediaType, params, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		req.Form = parseURLEncoded(string(body))
	case mediaType == "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("%w: malformed multipart: missing boundary", ErrBadRequest)
		}
		form, files := parseMultipart(body, boundary)
		req.Form = form
		req.Files = files
	}
	return nil
}

func parseURLEncoded(body string) map[string]string {
	out := map[string]string{}
	if body == "" {
		return out
	}
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		k := percentDecode(kv[0])
		v := ""
		if len(kv) == 2 {
			v = percentDecode(kv[1])
		}
		out[k] = v
	}
	return out
}

// percentDecode implements the §4.6 rule: '+' decodes to space, "%HH"
// decodes to its byte, and malformed "%" sequences are preserved
// verbatim rather than rejected.
func percentDecode(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			out.WriteByte(' ')
		case '%':
			if i+2 < len(s) {
				if b, err := parseHexByte(s[i+1], s[i+2]); err == nil {
					out.WriteByte(b)
					i += 2
					continue
				}
			}
			out.WriteByte('%')
		default:
			out.WriteByte(s[i])
		}
	}
	return out.String()
}

func parseHexByte(hi, lo byte) (byte, error) {
	h, err := strconv.ParseUint(string([]byte{hi, lo}), 16, 8)
	if err != nil {
		return 0, err
	}
	return byte(h), nil
}

// parseMultipart splits body on "--boundary" delimiters per §4.6.
func parseMultipart(body []byte, boundary string) (map[string]string, []UploadedFile) {
	form := map[string]string{}
	var files []UploadedFile

	delim := []byte("--" + boundary)
	parts := bytes.Split(body, delim)
	for _, raw := range parts {
		raw = bytes.Trim(raw, "\r\n")
		if len(raw) == 0 || bytes.Equal(raw, []byte("--")) {
			continue
		}
		sep := bytes.Index(raw, []byte("\r\n\r\n"))
		if sep < 0 {
			continue // missing header/body separator: skipped silently, no warning is emitted
		}
		headerBlock := string(raw[:sep])
		partBody := raw[sep+4:]
		partBody = bytes.TrimSuffix(partBody, []byte("\r\n"))

		name, filename, partContentType := parsePartHeaders(headerBlock)
		if name == "" {
			continue // missing name attribute: skipped silently, no warning is emitted
		}
		if filename != "" {
			if partContentType == "" {
				partContentType = "application/octet-stream"
			}
			files = append(files, UploadedFile{
				Field: name, Filename: filename,
				ContentType: partContentType, Bytes: partBody,
			})
			continue
		}
		form[name] = string(partBody)
	}
	return form, files
}

func parsePartHeaders(block string) (name, filename, contentType string) {
	for _, line := range strings.Split(block, "\r\n") {
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		switch key {
		case "content-disposition":
			name = extractAttr(val, "name")
			filename = extractAttr(val, "filename")
		case "content-type":
			contentType = val
		}
	}
	return
}

func extractAttr(header, attr string) string {
	for _, piece := range strings.Split(header, ";") {
		piece = strings.TrimSpace(piece)
		prefix := attr + "=\""
		if strings.HasPrefix(piece, prefix) {
			return strings.TrimSuffix(piece[len(prefix):], "\"")
		}
	}
	return ""
}

