// Package normalize turns a message's live content root into a detached,
// conversion-ready subtree. The input is never modified: every call works
// on a fresh deep copy and returns it.
package normalize

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatmd/adapter"
	"github.com/hazyhaar/chatmd/internal/htmlutil"
)

const (
	// ReservedClass marks the per-message export control the engine injects.
	ReservedClass = "chatmd-download-button"
	// ConversationClass marks the per-conversation export control.
	ConversationClass = "chatmd-conversation-button"
	// LinkMarkerAttr flags anchors rewritten as attachment placeholders.
	LinkMarkerAttr = "data-chatmd-download-link"
)

var baseChrome = []adapter.Selector{
	adapter.MustCompile("." + ReservedClass),
	adapter.MustCompile("." + ConversationClass),
	adapter.MustCompile(`button, [role="button"]`),
}

// Normalizer cleans content subtrees for one Site.
type Normalizer struct {
	site   *adapter.Site
	chrome []adapter.Selector
}

// New creates a Normalizer removing the engine's own controls, interactive
// buttons and the adapter's chrome selectors.
func New(site *adapter.Site) *Normalizer {
	chrome := append([]adapter.Selector{}, baseChrome...)
	chrome = append(chrome, site.Chrome()...)
	return &Normalizer{site: site, chrome: chrome}
}

// Normalize returns a cleaned deep copy of root. messageIndex feeds the
// synthetic attachment names. Chrome is removed before media repair so an
// action button is never mistaken for an attachment.
func (n *Normalizer) Normalize(root *html.Node, messageIndex int) *html.Node {
	if root == nil {
		return nil
	}
	clone := htmlutil.Clone(root)

	n.removeChrome(clone)
	repairImages(clone)
	n.repairAttachments(clone, messageIndex)
	return clone
}

func (n *Normalizer) removeChrome(root *html.Node) {
	for _, sel := range n.chrome {
		for _, el := range sel.QueryAll(root) {
			dom.RemoveNode(el)
		}
	}
}

var imgSelector = adapter.MustCompile("img")

func repairImages(root *html.Node) {
	for i, img := range imgSelector.QueryAll(root) {
		if strings.TrimSpace(dom.GetAttributeOr(img, "alt", "")) == "" {
			htmlutil.SetAttr(img, "alt", fmt.Sprintf("Image %d", i+1))
		}
		if dom.GetAttributeOr(img, "src", "") == "" {
			if deferred := dom.GetAttributeOr(img, "data-src", ""); deferred != "" {
				htmlutil.SetAttr(img, "src", deferred)
			}
		}
	}
}

func (n *Normalizer) repairAttachments(root *html.Node, messageIndex int) {
	var files []*html.Node
	seen := make(map[*html.Node]bool)
	for _, sel := range n.site.Attachments() {
		for _, el := range sel.QueryAll(root) {
			if !seen[el] {
				seen[el] = true
				files = append(files, el)
			}
		}
	}

	for fileIndex, el := range files {
		href := dom.GetAttributeOr(el, "href", "")
		if href == "" {
			continue
		}
		name := n.attachmentName(el, messageIndex, fileIndex)

		htmlutil.RemoveChildren(el)
		el.AppendChild(&html.Node{Type: html.TextNode, Data: "📎 " + name})
		htmlutil.SetAttr(el, LinkMarkerAttr, "true")
		htmlutil.SetAttr(el, "href", href)
	}
}

func (n *Normalizer) attachmentName(el *html.Node, messageIndex, fileIndex int) string {
	if name := strings.TrimSpace(dom.GetAttributeOr(el, "download", "")); name != "" {
		return name
	}
	if label := n.site.AttachmentLabels().Query(el); label != nil {
		if name := strings.TrimSpace(dom.CollectText(label)); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(dom.CollectText(el)); name != "" {
		return name
	}
	return fmt.Sprintf("file_%d_%d", messageIndex, fileIndex)
}
