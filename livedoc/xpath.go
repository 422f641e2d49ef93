package livedoc

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// XPath returns the address of n in the format the page script uses:
// tag[n], text()[n] or comment()[n] per step, counted among siblings of
// the same kind. It returns "" for nodes not attached to a document.
func XPath(n *html.Node) string {
	var steps []string
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.DocumentNode {
			return "/" + strings.Join(steps, "/")
		}
		name := stepName(cur)
		if name == "" || cur.Parent == nil {
			return ""
		}
		idx := 1
		for s := cur.PrevSibling; s != nil; s = s.PrevSibling {
			if stepName(s) == name {
				idx++
			}
		}
		steps = append([]string{name + "[" + strconv.Itoa(idx) + "]"}, steps...)
	}
	return ""
}

// Resolve walks path from root, which must be a document node.
func Resolve(root *html.Node, path string) *html.Node {
	if root == nil || !strings.HasPrefix(path, "/") {
		return nil
	}
	cur := root
	for _, step := range strings.Split(path[1:], "/") {
		if step == "" {
			continue
		}
		name, idx, ok := parseStep(step)
		if !ok {
			return nil
		}
		var next *html.Node
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if stepName(c) != name {
				continue
			}
			idx--
			if idx == 0 {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

func stepName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return n.Data
	case html.TextNode:
		return "text()"
	case html.CommentNode:
		return "comment()"
	}
	return ""
}

func parseStep(step string) (string, int, bool) {
	open := strings.LastIndexByte(step, '[')
	if open <= 0 || !strings.HasSuffix(step, "]") {
		return "", 0, false
	}
	idx, err := strconv.Atoi(step[open+1 : len(step)-1])
	if err != nil || idx < 1 {
		return "", 0, false
	}
	return step[:open], idx, true
}
