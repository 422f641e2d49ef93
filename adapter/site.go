package adapter

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"
)

// Site is a compiled, immutable Adapter. All selectors are parsed once;
// every method reads the document afresh.
type Site struct {
	adapter Adapter

	messages         []Selector
	owner            Selector
	watch            []Selector
	content          []contentRule
	authors          []authorRule
	titles           []Selector
	chrome           []Selector
	attachments      []Selector
	attachmentLabels Selector
	affordances      []affordanceRule
	anchors          []Selector
	probe            Selector
}

type contentRule struct {
	when      Selector
	selectors []Selector
}

type authorRule struct {
	role  Role
	scope Scope
	sel   Selector
}

type affordanceRule struct {
	when  Selector
	sel   Selector
	depth int
}

// New applies defaults to a, validates it and compiles every selector.
func New(a Adapter) (*Site, error) {
	a.defaults()
	if err := a.validate(); err != nil {
		return nil, err
	}

	s := &Site{adapter: a}
	var err error
	if s.messages, err = compileAll(a.MessageSelectors); err != nil {
		return nil, err
	}
	owner := a.OwnerSelector
	if owner == "" {
		owner = strings.Join(a.MessageSelectors, ", ")
	}
	if s.owner, err = Compile(owner); err != nil {
		return nil, err
	}
	watch := a.WatchSelectors
	if len(watch) == 0 {
		watch = a.MessageSelectors
	}
	if s.watch, err = compileAll(watch); err != nil {
		return nil, err
	}

	for _, r := range a.Content {
		cr := contentRule{}
		if r.When != "" {
			if cr.when, err = Compile(r.When); err != nil {
				return nil, err
			}
		}
		if cr.selectors, err = compileAll(r.Selectors); err != nil {
			return nil, err
		}
		s.content = append(s.content, cr)
	}

	for _, r := range a.Authors {
		sel, err := Compile(r.Selector)
		if err != nil {
			return nil, err
		}
		s.authors = append(s.authors, authorRule{role: r.Role, scope: r.Scope, sel: sel})
	}

	if s.titles, err = compileAll(a.Title.Selectors); err != nil {
		return nil, err
	}
	if s.chrome, err = compileAll(a.Chrome); err != nil {
		return nil, err
	}
	if s.attachments, err = compileAll(a.Attachments); err != nil {
		return nil, err
	}
	if a.AttachmentLabels != "" {
		if s.attachmentLabels, err = Compile(a.AttachmentLabels); err != nil {
			return nil, err
		}
	}

	for _, r := range a.Affordances {
		ar := affordanceRule{depth: r.SiblingDepth}
		if r.When != "" {
			if ar.when, err = Compile(r.When); err != nil {
				return nil, err
			}
		}
		if ar.sel, err = Compile(r.Selector); err != nil {
			return nil, err
		}
		s.affordances = append(s.affordances, ar)
	}

	if s.anchors, err = compileAll(a.ConversationAnchors); err != nil {
		return nil, err
	}
	if s.probe, err = Compile(a.Naming.Probe); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is like New but panics on error.
func MustNew(a Adapter) *Site {
	s, err := New(a)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the adapter name.
func (s *Site) Name() string { return s.adapter.Name }

// Adapter returns a copy of the configuration the site was compiled from.
func (s *Site) Adapter() Adapter { return s.adapter }

func (s *Site) MessageSelectors() []Selector { return s.messages }
func (s *Site) WatchSelectors() []Selector   { return s.watch }
func (s *Site) Owner() Selector              { return s.owner }
func (s *Site) Chrome() []Selector           { return s.chrome }
func (s *Site) Attachments() []Selector      { return s.attachments }
func (s *Site) AttachmentLabels() Selector   { return s.attachmentLabels }
func (s *Site) Retry() RetryPolicy           { return s.adapter.Retry }

// ContentSelectors returns the content-root selectors that apply to msg,
// in priority order.
func (s *Site) ContentSelectors(msg *html.Node) []Selector {
	var out []Selector
	for _, r := range s.content {
		if !r.when.IsZero() && !r.when.Match(msg) {
			continue
		}
		out = append(out, r.selectors...)
	}
	return out
}

// DetectRole evaluates the author rules in order. The boolean is false
// when no rule matched and the default role was returned.
func (s *Site) DetectRole(msg *html.Node) (Role, bool) {
	for _, r := range s.authors {
		var hit bool
		switch r.scope {
		case ScopeSelf:
			hit = r.sel.Match(msg)
		case ScopeDescendant:
			hit = r.sel.Query(msg) != nil
		case ScopeAncestor:
			hit = msg != nil && r.sel.Closest(msg.Parent) != nil
		}
		if hit {
			return r.role, true
		}
	}
	return s.adapter.DefaultRole, false
}

// Label returns the conversation label for role.
func (s *Site) Label(role Role) string {
	if role == User {
		return s.adapter.Labels.User
	}
	return s.adapter.Labels.Assistant
}

// Title reads the conversation title from doc.
func (s *Site) Title(doc *html.Node) string {
	for _, sel := range s.titles {
		n := sel.Query(doc)
		if n == nil {
			continue
		}
		title := strings.Join(strings.Fields(dom.CollectText(n)), " ")
		if title == "" || s.ignoredTitle(title) {
			continue
		}
		return title
	}
	return s.adapter.Title.Fallback
}

func (s *Site) ignoredTitle(title string) bool {
	for _, ig := range s.adapter.Title.Ignore {
		if title == ig {
			return true
		}
	}
	return false
}

// Affordance returns the site's action element for msg, or nil when it
// has not rendered yet.
func (s *Site) Affordance(msg *html.Node) *html.Node {
	for _, r := range s.affordances {
		if !r.when.IsZero() && !r.when.Match(msg) {
			continue
		}
		if n := r.sel.Query(msg); n != nil {
			return n
		}
		ctx := msg
		for depth := 0; depth < r.depth && ctx != nil; depth++ {
			for next := dom.NextSiblingElement(ctx); next != nil; next = dom.NextSiblingElement(next) {
				if r.sel.Match(next) {
					return next
				}
				if n := r.sel.Query(next); n != nil {
					return n
				}
			}
			ctx = ctx.Parent
			if ctx != nil && ctx.Type != html.ElementNode {
				ctx = nil
			}
		}
	}
	return nil
}

// ConversationAnchor returns the element after which the per-conversation
// control is placed, or nil.
func (s *Site) ConversationAnchor(doc *html.Node) *html.Node {
	for _, sel := range s.anchors {
		if n := sel.Query(doc); n != nil {
			return n
		}
	}
	return nil
}

// Prefixes returns the request and analysis filename prefixes for doc.
func (s *Site) Prefixes(doc *html.Node) (request, analysis string) {
	n := s.adapter.Naming
	var lang, label string
	if root := documentElement(doc); root != nil {
		lang = strings.ToLower(dom.GetAttributeOr(root, "lang", ""))
	}
	if probe := s.probe.Query(doc); probe != nil {
		label = dom.GetAttributeOr(probe, "aria-label", "")
	}
	for _, loc := range n.Locales {
		if loc.Lang != "" && strings.HasPrefix(lang, strings.ToLower(loc.Lang)) {
			return loc.Request, loc.Analysis
		}
		if table, ok := unicode.Scripts[loc.Script]; ok && containsScript(label, table) {
			return loc.Request, loc.Analysis
		}
	}
	return n.Request, n.Analysis
}

func containsScript(s string, table *unicode.RangeTable) bool {
	for _, r := range s {
		if unicode.Is(table, r) {
			return true
		}
	}
	return false
}

func documentElement(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == html.ElementNode && doc.Data == "html" {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "html" {
			return c
		}
	}
	return nil
}

func (s *Site) String() string {
	return fmt.Sprintf("adapter(%s)", s.adapter.Name)
}
