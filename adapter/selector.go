package adapter

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector group with querySelector semantics:
// queries look at descendants only, Match and Closest include the node
// itself.
type Selector struct {
	src   string
	group cascadia.SelectorGroup
}

// Compile parses a selector or a comma-separated selector group.
func Compile(src string) (Selector, error) {
	g, err := cascadia.ParseGroup(src)
	if err != nil {
		return Selector{}, fmt.Errorf("adapter: selector %q: %w", src, err)
	}
	return Selector{src: src, group: g}, nil
}

// MustCompile is like Compile but panics on error. Used for built-ins.
func MustCompile(src string) Selector {
	s, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return s
}

func compileAll(srcs []string) ([]Selector, error) {
	out := make([]Selector, 0, len(srcs))
	for _, src := range srcs {
		s, err := Compile(src)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// String returns the selector source.
func (s Selector) String() string { return s.src }

// IsZero reports whether s was never compiled.
func (s Selector) IsZero() bool { return s.group == nil }

// Match reports whether n is an element matched by s.
func (s Selector) Match(n *html.Node) bool {
	if s.group == nil || n == nil || n.Type != html.ElementNode {
		return false
	}
	return s.group.Match(n)
}

// QueryAll returns every descendant of root matched by s, in document order.
func (s Selector) QueryAll(root *html.Node) []*html.Node {
	if s.group == nil || root == nil {
		return nil
	}
	return cascadia.QueryAll(root, s.group)
}

// Query returns the first descendant of root matched by s, or nil.
func (s Selector) Query(root *html.Node) *html.Node {
	if s.group == nil || root == nil {
		return nil
	}
	return cascadia.Query(root, s.group)
}

// Closest returns n or its nearest ancestor matched by s, or nil.
func (s Selector) Closest(n *html.Node) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if s.Match(cur) {
			return cur
		}
	}
	return nil
}

// SelfOrAll returns root itself when it matches, followed by all matching
// descendants.
func (s Selector) SelfOrAll(root *html.Node) []*html.Node {
	var out []*html.Node
	if s.Match(root) {
		out = append(out, root)
	}
	return append(out, s.QueryAll(root)...)
}
