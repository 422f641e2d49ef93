package render

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/marker"
	"golang.org/x/net/html"
)

const (
	bulletMarker = "* "
	itemIndent   = "  "
	fence        = "```"
	// lineBreak is what a <br> becomes, followed by a newline.
	lineBreak = "\n"
)

var languageClass = regexp.MustCompile(`language-([\w-]+)`)

// overrides replaces commonmark's list, line break and inline-code
// rendering.
type overrides struct{}

func (o *overrides) Name() string { return "chatmd-overrides" }

func (o *overrides) Init(conv *converter.Converter) error {
	conv.Register.Renderer(o.renderList, converter.PriorityEarly)
	conv.Register.Renderer(o.renderMultiLineCode, converter.PriorityEarly)
	conv.Register.Renderer(o.renderBreak, converter.PriorityEarly)
	return nil
}

func (o *overrides) renderBreak(_ converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
	if dom.NodeName(n) != "br" {
		return converter.RenderTryNext
	}
	w.WriteString(lineBreak + "\n")
	return converter.RenderSuccess
}

// renderList writes every element child of a ul/ol as one item. Ordered
// markers are start plus the item's index among element siblings. A list
// that ends its parent item stays tight against the item text.
func (o *overrides) renderList(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
	name := dom.NodeName(n)
	if name != "ul" && name != "ol" {
		return converter.RenderTryNext
	}

	items := dom.AllChildElements(n)
	start := 1
	if name == "ol" {
		start = startAt(n)
	}

	tight := closesItem(n)
	if tight {
		w.WriteString("\n")
	} else {
		w.WriteString("\n\n")
	}
	for i, item := range items {
		var buf bytes.Buffer
		ctx.RenderChildNodes(ctx, &buf, item)
		content := bytes.TrimSpace(ctx.UnEscapeContent(buf.Bytes()))

		if name == "ol" {
			w.WriteString(strconv.Itoa(start+i) + ". ")
		} else {
			w.WriteString(bulletMarker)
		}
		writeIndented(w, content)

		if i < len(items)-1 {
			w.WriteString("\n")
		}
	}
	if !tight {
		w.WriteString("\n\n")
	}
	return converter.RenderSuccess
}

// closesItem reports whether list is the last element child of an li.
func closesItem(list *html.Node) bool {
	p := list.Parent
	if p == nil || dom.NodeName(p) != "li" {
		return false
	}
	for s := list.NextSibling; s != nil; s = s.NextSibling {
		switch s.Type {
		case html.ElementNode:
			return false
		case html.TextNode:
			if strings.TrimSpace(s.Data) != "" {
				return false
			}
		}
	}
	return true
}

func startAt(n *html.Node) int {
	v, ok := dom.GetAttribute(n, "start")
	if !ok {
		return 1
	}
	k, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 1
	}
	return k
}

// writeIndented writes content, indenting every line after the first so
// it nests under the item marker. Blank lines stay blank.
func writeIndented(w converter.Writer, content []byte) {
	nl := marker.BytesMarkerCodeBlockNewline
	indentedNL := append(append([]byte{}, nl...), itemIndent...)

	lines := bytes.Split(content, []byte("\n"))
	for i, line := range lines {
		line = bytes.ReplaceAll(line, nl, indentedNL)
		if i > 0 && len(line) > 0 {
			w.WriteString(itemIndent)
		}
		w.Write(line)
		if i < len(lines)-1 {
			w.WriteByte('\n')
		}
	}
}

// renderMultiLineCode promotes a <code> whose text spans lines, and which
// is not inside pre or code, to a fenced block.
func (o *overrides) renderMultiLineCode(_ converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
	if dom.NodeName(n) != "code" || insideCode(n) {
		return converter.RenderTryNext
	}
	text := dom.CollectText(n)
	if !strings.Contains(text, "\n") {
		return converter.RenderTryNext
	}

	lang := ""
	if m := languageClass.FindStringSubmatch(dom.GetAttributeOr(n, "class", "")); m != nil {
		lang = m[1]
	}
	code := strings.Trim(text, "\n")
	code = strings.ReplaceAll(code, "\n", string(marker.MarkerCodeBlockNewline))

	w.WriteString("\n\n")
	w.WriteString(fence)
	w.WriteString(lang)
	w.WriteByte('\n')
	w.WriteString(code)
	w.WriteByte('\n')
	w.WriteString(fence)
	w.WriteString("\n\n")
	return converter.RenderSuccess
}

func insideCode(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if name := dom.NodeName(p); name == "pre" || name == "code" {
			return true
		}
	}
	return false
}
