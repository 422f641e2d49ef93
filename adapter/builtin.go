package adapter

import (
	"fmt"
	"sort"
	"time"
)

var russian = Locale{Lang: "ru", Script: "Cyrillic", Request: "запрос", Analysis: "анализ"}

// ChatGPT returns the adapter for chatgpt.com conversation pages.
func ChatGPT() Adapter {
	return Adapter{
		Name: "chatgpt",
		MessageSelectors: []string{
			"[data-message-author-role]",
			"[data-message-id]",
			"article[data-testid*='conversation-turn']",
			"[data-testid*='conversation-turn']",
			".group.text-token-text-primary",
			"[class*='group'][class*='text-token']",
			"article",
			"[class*='group']",
		},
		OwnerSelector:  "[data-message-author-role], [data-message-id]",
		WatchSelectors: []string{"[data-message-author-role]"},
		Content: []ContentRule{{
			Selectors: []string{
				"[class*='whitespace-pre-wrap']",
				"[class*='prose']",
				"[class*='markdown']",
				".markdown",
				"[class*='text-base']",
				"[data-testid*='content']",
				"p",
				"div",
			},
		}},
		Authors: []AuthorRule{
			{Role: User, Scope: ScopeSelf, Selector: "[data-message-author-role='user']"},
			{Role: Assistant, Scope: ScopeSelf, Selector: "[data-message-author-role='assistant']"},
			{Role: User, Scope: ScopeDescendant, Selector: "img[alt*='user' i]"},
			{Role: User, Scope: ScopeDescendant, Selector: "[data-testid*='user']"},
			{Role: User, Scope: ScopeDescendant, Selector: "[data-message-author-role='user']"},
			{Role: User, Scope: ScopeSelf, Selector: "[data-turn='user']"},
		},
		DefaultRole: Assistant,
		Title: TitleRule{
			Selectors: []string{"title"},
			Fallback:  "Conversation with ChatGPT",
		},
		Chrome: []string{
			`[data-testid*="copy"]`,
			`[data-testid*="toast"]`,
			`[data-testid*="share"]`,
		},
		Attachments: []string{
			"a[download]",
			"a[href*='blob:']",
			"div[class*='text-token-text-primary'] a",
			"div[class*='border-token-border'] a",
		},
		AttachmentLabels: "div[class*='font-semibold'], .font-semibold, [class*='truncate']",
		Affordances: []AffordanceRule{{
			Selector:     `button[data-testid="copy-turn-action-button"]`,
			SiblingDepth: 5,
		}},
		ConversationAnchors: []string{
			`button[aria-label="Dictate button"]`,
			"div[data-testid='composer-footer-actions']",
			"form[data-type*='composer'] div[role='toolbar']",
			"form[data-type*='composer']",
		},
		Retry: RetryPolicy{
			MaxRetries: 12,
			Steps: []RetryStep{
				{Below: 4, Delay: 0},
				{Below: 8, Delay: 50 * time.Millisecond},
				{Delay: 100 * time.Millisecond},
			},
		},
		Labels: Labels{User: "User", Assistant: "ChatGPT"},
		Naming: Naming{Request: "request", Analysis: "analysis", Locales: []Locale{russian}},
	}
}

// Gemini returns the adapter for gemini.google.com conversation pages.
func Gemini() Adapter {
	return Adapter{
		Name:             "gemini",
		MessageSelectors: []string{"model-response, user-query"},
		Content: []ContentRule{
			{When: "model-response", Selectors: []string{"message-content"}},
			{When: "user-query", Selectors: []string{"user-query-content", ".query-text"}},
		},
		Authors: []AuthorRule{
			{Role: User, Scope: ScopeSelf, Selector: "user-query"},
			{Role: Assistant, Scope: ScopeSelf, Selector: "model-response"},
			{Role: User, Scope: ScopeAncestor, Selector: "user-query"},
			{Role: Assistant, Scope: ScopeAncestor, Selector: "model-response"},
		},
		DefaultRole: Assistant,
		Title: TitleRule{
			Selectors: []string{".conversation-title", "title"},
			Ignore:    []string{"Google Gemini"},
			Fallback:  "Conversation with Gemini",
		},
		Chrome: []string{".buttons-container-v2", ".actions-container-v2"},
		Affordances: []AffordanceRule{
			{When: "model-response", Selector: "copy-button:has(button)"},
			{When: "user-query", Selector: `[mattooltip="Copy prompt"], [aria-label="Copy prompt"]`},
		},
		ConversationAnchors: []string{".input-buttons-wrapper-bottom .mic-button-container"},
		Retry: RetryPolicy{
			MaxRetries: 20,
			Steps: []RetryStep{
				{Below: 5, Delay: 100 * time.Millisecond},
				{Below: 10, Delay: 300 * time.Millisecond},
				{Delay: 500 * time.Millisecond},
			},
		},
		Labels: Labels{User: "User", Assistant: "Gemini"},
		Naming: Naming{Request: "request", Analysis: "analysis", Locales: []Locale{russian}},
	}
}

var builtins = map[string]func() Adapter{
	"chatgpt": ChatGPT,
	"gemini":  Gemini,
}

// Builtin returns the named built-in adapter.
func Builtin(name string) (Adapter, error) {
	fn, ok := builtins[name]
	if !ok {
		return Adapter{}, fmt.Errorf("adapter: unknown builtin %q (have %v)", name, BuiltinNames())
	}
	return fn(), nil
}

// BuiltinNames lists the built-in adapters in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
