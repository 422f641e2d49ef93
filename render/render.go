// Package render converts cleaned message subtrees into Markdown.
//
// Conversion is html-to-markdown v2 (base, commonmark, table and
// strikethrough plugins) plus two overrides registered ahead of
// commonmark: list items and multi-line inline code.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/chatmd/internal/htmlutil"
)

// ErrRendererUnavailable means the conversion engine could not be set up.
// It is fatal for the invocation.
var ErrRendererUnavailable = errors.New("render: markdown converter unavailable")

// Config tunes the converter. The zero value gives the house style.
type Config struct {
	// Domain resolves relative link and image URLs when set.
	Domain string
	// Plugins are added after the built-in set.
	Plugins []converter.Plugin
}

// Renderer is safe for concurrent use.
type Renderer struct {
	conv   *converter.Converter
	domain string
}

// New builds the converter and runs a probe conversion so plugin
// initialisation errors surface here instead of on the first message.
func New(cfg Config) (*Renderer, error) {
	plugins := []converter.Plugin{
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(
			commonmark.WithHeadingStyle(commonmark.HeadingStyleATX),
			commonmark.WithHorizontalRule("---"),
			commonmark.WithBulletListMarker("*"),
			commonmark.WithEmDelimiter("*"),
			commonmark.WithStrongDelimiter("**"),
			commonmark.WithCodeBlockFence("```"),
			commonmark.WithListEndComment(false),
		),
		table.NewTablePlugin(),
		strikethrough.NewStrikethroughPlugin(),
		&overrides{},
	}
	plugins = append(plugins, cfg.Plugins...)

	conv := converter.NewConverter(converter.WithPlugins(plugins...))
	if _, err := conv.ConvertNode(&html.Node{Type: html.DocumentNode}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	return &Renderer{conv: conv, domain: cfg.Domain}, nil
}

// Render converts n to Markdown. n is not modified. Line endings are
// normalised to LF and the result is trimmed. The output depends only on
// the subtree.
func (r *Renderer) Render(n *html.Node) (string, error) {
	if r == nil || r.conv == nil {
		return "", ErrRendererUnavailable
	}
	if n == nil {
		return "", nil
	}

	// The converter rewrites the tree during pre-render.
	doc := &html.Node{Type: html.DocumentNode}
	if n.Type == html.DocumentNode {
		doc = htmlutil.Clone(n)
	} else {
		doc.AppendChild(htmlutil.Clone(n))
	}

	var opts []converter.ConvertOptionFunc
	if r.domain != "" {
		opts = append(opts, converter.WithDomain(r.domain))
	}
	out, err := r.conv.ConvertNode(doc, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	return finish(string(out)), nil
}

// RenderString parses src as an HTML fragment and renders it.
func (r *Renderer) RenderString(src string) (string, error) {
	nodes, err := htmlutil.ParseFragment(src, "div")
	if err != nil {
		return "", fmt.Errorf("render: parse: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, c := range nodes {
		root.AppendChild(c)
	}
	return r.Render(root)
}

func finish(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}
