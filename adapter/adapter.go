// Package adapter describes how the extraction engine reads one chat site.
//
// An Adapter is plain data: ordered message selectors, content rules,
// author rules, the title accessor, chrome and attachment selectors, and
// the affordance that tells the watcher a message is ready for its export
// control. Adapters are compiled into a Site before use; the engine never
// branches on the site name.
package adapter

import (
	"fmt"
	"time"
)

// Role is the author of a conversational turn.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
)

// Scope tells an AuthorRule where its selector is evaluated relative to
// the message element.
type Scope string

const (
	ScopeSelf       Scope = "self"       // the message element itself
	ScopeDescendant Scope = "descendant" // any element inside the message
	ScopeAncestor   Scope = "ancestor"   // any ancestor of the message
)

// Adapter is the per-site configuration consumed by the locator, the
// normalizer, the assembler and the watcher.
type Adapter struct {
	Name string `yaml:"name" json:"name"`

	// MessageSelectors are tried in order; the first one matching at least
	// one element defines the message list. Results are never merged.
	MessageSelectors []string `yaml:"message_selectors" json:"message_selectors"`
	// OwnerSelector is the narrow selector used when resolving which message
	// a control belongs to.
	OwnerSelector string `yaml:"owner_selector" json:"owner_selector"`
	// WatchSelectors drive discovery inside freshly inserted subtrees.
	// Empty means MessageSelectors.
	WatchSelectors []string `yaml:"watch_selectors" json:"watch_selectors,omitempty"`

	Content []ContentRule `yaml:"content" json:"content"`
	Authors []AuthorRule  `yaml:"authors" json:"authors"`
	// DefaultRole is used when no author rule matches.
	DefaultRole Role `yaml:"default_role" json:"default_role"`

	Title TitleRule `yaml:"title" json:"title"`

	Chrome           []string `yaml:"chrome" json:"chrome,omitempty"`
	Attachments      []string `yaml:"attachments" json:"attachments,omitempty"`
	AttachmentLabels string   `yaml:"attachment_labels" json:"attachment_labels,omitempty"`

	Affordances         []AffordanceRule `yaml:"affordances" json:"affordances"`
	ConversationAnchors []string         `yaml:"conversation_anchors" json:"conversation_anchors,omitempty"`
	Retry               RetryPolicy      `yaml:"retry" json:"retry"`

	Labels Labels `yaml:"labels" json:"labels"`
	Naming Naming `yaml:"naming" json:"naming"`
}

// ContentRule lists content-root selectors for messages matching When.
// An empty When applies to every message.
type ContentRule struct {
	When      string   `yaml:"when" json:"when,omitempty"`
	Selectors []string `yaml:"selectors" json:"selectors"`
}

// AuthorRule assigns Role to a message when Selector matches in Scope.
type AuthorRule struct {
	Role     Role   `yaml:"role" json:"role"`
	Scope    Scope  `yaml:"scope" json:"scope"`
	Selector string `yaml:"selector" json:"selector"`
}

// TitleRule reads the conversation title: the first selector whose match
// has text not listed in Ignore wins, otherwise Fallback.
type TitleRule struct {
	Selectors []string `yaml:"selectors" json:"selectors"`
	Ignore    []string `yaml:"ignore" json:"ignore,omitempty"`
	Fallback  string   `yaml:"fallback" json:"fallback"`
}

// AffordanceRule locates the site's own action element (usually a copy
// button) that marks a message as fully rendered. The element is searched
// inside the message first, then through following siblings of the message
// and up to SiblingDepth of its ancestors.
type AffordanceRule struct {
	When         string `yaml:"when" json:"when,omitempty"`
	Selector     string `yaml:"selector" json:"selector"`
	SiblingDepth int    `yaml:"sibling_depth" json:"sibling_depth,omitempty"`
}

// RetryPolicy bounds the readiness checks for a message whose affordance
// has not rendered yet. The first check runs at once; MaxRetries more
// follow it, each after the Delay of the check that failed.
type RetryPolicy struct {
	MaxRetries int         `yaml:"max_retries" json:"max_retries"`
	Steps      []RetryStep `yaml:"steps" json:"steps"`
}

// RetryStep applies Delay to checks numbered below Below. A zero Below
// covers every remaining retry.
type RetryStep struct {
	Below int           `yaml:"below" json:"below,omitempty"`
	Delay time.Duration `yaml:"delay" json:"delay"`
}

// Delay returns the wait after failed check number attempt (zero based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Steps) == 0 {
		return 0
	}
	for _, s := range p.Steps {
		if s.Below == 0 || attempt < s.Below {
			return s.Delay
		}
	}
	return p.Steps[len(p.Steps)-1].Delay
}

// Labels are the bold role labels used in conversation documents.
type Labels struct {
	User      string `yaml:"user" json:"user"`
	Assistant string `yaml:"assistant" json:"assistant"`
}

// Naming holds the filename prefixes and the locales that override them.
type Naming struct {
	Request  string `yaml:"request" json:"request"`
	Analysis string `yaml:"analysis" json:"analysis"`
	// Probe selects an element whose aria-label reveals the UI language.
	Probe   string   `yaml:"probe" json:"probe,omitempty"`
	Locales []Locale `yaml:"locales" json:"locales,omitempty"`
}

// Locale switches prefixes when the document language starts with Lang or
// the probe label contains letters of Script (a unicode.Scripts key).
type Locale struct {
	Lang     string `yaml:"lang" json:"lang"`
	Script   string `yaml:"script" json:"script,omitempty"`
	Request  string `yaml:"request" json:"request"`
	Analysis string `yaml:"analysis" json:"analysis"`
}

func (a *Adapter) defaults() {
	if a.DefaultRole == "" {
		a.DefaultRole = Assistant
	}
	if a.Labels.User == "" {
		a.Labels.User = "User"
	}
	if a.Labels.Assistant == "" {
		a.Labels.Assistant = "Assistant"
	}
	if a.Naming.Request == "" {
		a.Naming.Request = "request"
	}
	if a.Naming.Analysis == "" {
		a.Naming.Analysis = "analysis"
	}
	if a.Naming.Probe == "" {
		a.Naming.Probe = "button[aria-label]"
	}
	if a.Title.Fallback == "" {
		a.Title.Fallback = "Conversation"
	}
	for i := range a.Authors {
		if a.Authors[i].Scope == "" {
			a.Authors[i].Scope = ScopeSelf
		}
	}
}

func (a *Adapter) validate() error {
	if a.Name == "" {
		return fmt.Errorf("adapter: name is required")
	}
	if len(a.MessageSelectors) == 0 {
		return fmt.Errorf("adapter %s: at least one message selector is required", a.Name)
	}
	if len(a.Content) == 0 {
		return fmt.Errorf("adapter %s: at least one content rule is required", a.Name)
	}
	switch a.DefaultRole {
	case User, Assistant:
	default:
		return fmt.Errorf("adapter %s: unknown default role %q", a.Name, a.DefaultRole)
	}
	for _, r := range a.Authors {
		switch r.Role {
		case User, Assistant:
		default:
			return fmt.Errorf("adapter %s: unknown author role %q", a.Name, r.Role)
		}
		switch r.Scope {
		case ScopeSelf, ScopeDescendant, ScopeAncestor:
		default:
			return fmt.Errorf("adapter %s: unknown author scope %q", a.Name, r.Scope)
		}
	}
	return nil
}
