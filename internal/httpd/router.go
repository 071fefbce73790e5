package httpd

import (
	"regexp"
	"strings"
)

// Handler is the dynamic/static handler contract (spec.md §6/§4.8):
// callable from any worker goroutine, given the server's read-only
// config snapshot, the parsed request, and its routed parameters.
type Handler func(config map[string]string, req *Request, params map[string]string) *Response

// route is one compiled pattern registration (spec.md §3 "Route").
type route struct {
	pattern string
	matcher *regexp.Regexp
	names   []string
	handler Handler
}

// Router matches request paths against `{name}`-placeholder patterns in
// registration order, first match wins (spec.md §4.7).
type Router struct {
	routes []route
}

// NewRouter creates an empty Router.
func NewRouter() *Router { return &Router{} }

// Register compiles pattern and appends it to the route table. Each
// `{name}` placeholder matches any run of non-'/' characters; the full
// pattern is anchored at both ends.
func (rt *Router) Register(pattern string, h Handler) {
	names, re := compilePattern(pattern)
	rt.routes = append(rt.routes, route{pattern: pattern, matcher: re, names: names, handler: h})
}

// compilePattern turns "/users/{id}/posts/{post}" into an anchored regexp
// capturing one group per placeholder, in pattern order.
func compilePattern(pattern string) ([]string, *regexp.Regexp) {
	var names []string
	var b strings.Builder
	b.WriteByte('^')

	i := 0
	for i < len(pattern) {
		if pattern[i] == '{' {
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				b.WriteString(regexp.QuoteMeta(pattern[i:]))
				break
			}
			name := pattern[i+1 : i+end]
			names = append(names, name)
			b.WriteString("([^/]*)")
			i += end + 1
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		i++
	}
	b.WriteByte('$')
	return names, regexp.MustCompile(b.String())
}

// Match finds the first registered route whose pattern matches path,
// returning its handler and the populated parameter map (empty captures
// are omitted per spec.md §4.7). ok is false if nothing matched.
func (rt *Router) Match(path string) (h Handler, params map[string]string, ok bool) {
	for _, r := range rt.routes {
		m := r.matcher.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		p := map[string]string{}
		for i, name := range r.names {
			if v := m[i+1]; v != "" {
				p[name] = v
			}
		}
		return r.handler, p, true
	}
	return nil, nil, false
}
