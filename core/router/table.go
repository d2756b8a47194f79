// Package router provides the route table: an exact-match map for static
// paths with a segment tree for :param and *catchall patterns.
//
// Lookup precedence is static > param > catch-all. Matching never
// backtracks: once a request descends into a param branch, a dead end is
// a miss even if a shallower catch-all could have matched. Registration
// is last-write-wins for an identical (method, pattern) pair, and the
// method is part of the key, so a path registered under another method
// does not match.
package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/emberhttp/ember/core/http"
)

// Table is a concurrency-safe route table. Reads take the read lock, so
// routes can be registered while the server is accepting traffic.
type Table struct {
	mu     sync.RWMutex
	static map[string]map[string]http.Handler // path -> method -> handler
	root   *node
	count  int
}

type node struct {
	children map[string]*node
	handlers map[string]http.Handler // method -> handler

	param     *node
	paramName string

	catch     *node
	catchName string

	pattern string
}

// New creates an empty route table.
func New() *Table {
	return &Table{
		static: make(map[string]map[string]http.Handler),
		root:   &node{},
	}
}

// Register adds a route. Patterns must begin with '/'. A segment equal to
// ":name" matches exactly one non-empty segment; "*name" matches the rest
// of the path and must be the final segment. Registering the same method
// and pattern again replaces the previous handler.
//
// Register panics on malformed patterns and on wildcard name conflicts,
// since both are programming errors.
func (t *Table) Register(method, pattern string, handler http.Handler) {
	if pattern == "" || pattern[0] != '/' {
		panic("router: pattern must begin with '/'")
	}
	if handler == nil {
		panic("router: nil handler")
	}
	method = strings.ToUpper(method)

	t.mu.Lock()
	defer t.mu.Unlock()

	if !strings.ContainsAny(pattern, ":*") {
		methods, ok := t.static[pattern]
		if !ok {
			methods = make(map[string]http.Handler, 1)
			t.static[pattern] = methods
		}
		if _, exists := methods[method]; !exists {
			t.count++
		}
		methods[method] = handler
		return
	}

	t.insertTree(method, pattern, handler)
}

func (t *Table) insertTree(method, pattern string, handler http.Handler) {
	n := t.root
	segs := strings.Split(pattern[1:], "/")

	for i, seg := range segs {
		switch {
		case strings.HasPrefix(seg, ":"):
			if len(seg) < 2 {
				panic("router: wildcards must be named")
			}
			name := seg[1:]
			if n.param == nil {
				n.param = &node{}
				n.paramName = name
			} else if n.paramName != name {
				panic("router: conflicting parameter name in pattern " + pattern)
			}
			n = n.param

		case strings.HasPrefix(seg, "*"):
			if len(seg) < 2 {
				panic("router: wildcards must be named")
			}
			if i != len(segs)-1 {
				panic("router: catch-all must be the final segment")
			}
			name := seg[1:]
			if n.catch == nil {
				n.catch = &node{}
				n.catchName = name
			} else if n.catchName != name {
				panic("router: conflicting catch-all name in pattern " + pattern)
			}
			n = n.catch

		default:
			if strings.ContainsAny(seg, ":*") {
				panic("router: wildcard must occupy a full path segment")
			}
			child, ok := n.children[seg]
			if !ok {
				child = &node{}
				if n.children == nil {
					n.children = make(map[string]*node)
				}
				n.children[seg] = child
			}
			n = child
		}
	}

	if n.handlers == nil {
		n.handlers = make(map[string]http.Handler, 1)
	}
	if _, exists := n.handlers[method]; !exists {
		t.count++
	}
	n.handlers[method] = handler
	n.pattern = pattern
}

// Resolve finds the handler for a method and path. It returns nil when no
// route matches. The params map is nil for static matches and for misses.
func (t *Table) Resolve(method, path string) (http.Handler, map[string]string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if methods, ok := t.static[path]; ok {
		if handler, ok := methods[method]; ok {
			return handler, nil
		}
		// Another method may still match a wildcard pattern.
	}
	if path == "" || path[0] != '/' {
		return nil, nil
	}
	return t.resolveTree(method, path)
}

func (t *Table) resolveTree(method, path string) (http.Handler, map[string]string) {
	n := t.root
	rest := path[1:]
	var params map[string]string

	for {
		seg := rest
		tail := ""
		last := true
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			seg, tail = rest[:i], rest[i+1:]
			last = false
		}

		if child, ok := n.children[seg]; ok {
			n = child
		} else if n.param != nil && seg != "" {
			if params == nil {
				params = make(map[string]string, 2)
			}
			params[n.paramName] = seg
			n = n.param
		} else if n.catch != nil {
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[n.catchName] = rest
			n = n.catch
			break
		} else {
			return nil, nil
		}

		if last {
			break
		}
		rest = tail
	}

	handler := n.handlers[method]
	if handler == nil {
		return nil, nil
	}
	return handler, params
}

// Routes lists registered routes as "METHOD pattern", sorted.
func (t *Table) Routes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	routes := make([]string, 0, t.count)
	for path, methods := range t.static {
		for _, method := range lo.Keys(methods) {
			routes = append(routes, method+" "+path)
		}
	}
	t.root.collect(&routes)
	sort.Strings(routes)
	return routes
}

func (n *node) collect(routes *[]string) {
	for method := range n.handlers {
		*routes = append(*routes, method+" "+n.pattern)
	}
	for _, child := range n.children {
		child.collect(routes)
	}
	if n.param != nil {
		n.param.collect(routes)
	}
	if n.catch != nil {
		n.catch.collect(routes)
	}
}

// Len reports the number of registered (method, pattern) pairs.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}
