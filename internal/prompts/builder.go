package prompts

import (
	"fmt"
	"strings"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Document is catalog context attached to a prompt.
type Document struct {
	Content string
	Source  string
}

const (
	maxContextDocuments = 5
	maxDocumentRunes    = 500
)

// Builder assembles a prompt from a base template, retrieved catalog
// context, and conversation history.
type Builder struct {
	kind         Kind
	system       string
	userMessage  string
	documents    []Document
	history      []Message
	instructions []string
}

// NewBuilder creates a builder for the given prompt kind.
func NewBuilder(kind Kind) *Builder {
	return &Builder{kind: kind}
}

// WithSystem overrides the base system prompt for the kind.
func (b *Builder) WithSystem(message string) *Builder {
	b.system = message
	return b
}

// WithUserMessage sets the final user message.
func (b *Builder) WithUserMessage(message string) *Builder {
	b.userMessage = message
	return b
}

// WithDocuments appends retrieved context documents.
func (b *Builder) WithDocuments(docs ...Document) *Builder {
	b.documents = append(b.documents, docs...)
	return b
}

// WithHistory appends conversation turns ahead of the user message.
func (b *Builder) WithHistory(messages ...Message) *Builder {
	b.history = append(b.history, messages...)
	return b
}

// WithInstructions appends extra system-level instructions.
func (b *Builder) WithInstructions(instructions ...string) *Builder {
	b.instructions = append(b.instructions, instructions...)
	return b
}

// Built is the assembled prompt, ready for the invocation body.
type Built struct {
	System   string
	Messages []Message
}

// UserMessage returns the content of the final user turn, empty when
// none was set.
func (p Built) UserMessage() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == "user" {
			return p.Messages[i].Content
		}
	}
	return ""
}

// Build assembles the final prompt. Retrieved context is prepended to
// the user message, capped at five documents of 500 characters each
// to keep token usage bounded.
func (b *Builder) Build() Built {
	system := b.system
	if system == "" {
		system = systemFor(b.kind)
	}
	if len(b.instructions) > 0 {
		var sb strings.Builder
		sb.WriteString(system)
		sb.WriteString("\n\nAdditional Instructions:\n")
		for i, inst := range b.instructions {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString("- ")
			sb.WriteString(inst)
		}
		system = sb.String()
	}

	messages := make([]Message, 0, len(b.history)+1)
	messages = append(messages, b.history...)

	if b.userMessage != "" {
		content := b.userMessage
		if context := b.contextText(); context != "" {
			content = context + "\n\n" + content
		}
		messages = append(messages, Message{Role: "user", Content: content})
	}

	return Built{System: system, Messages: messages}
}

func (b *Builder) contextText() string {
	if len(b.documents) == 0 {
		return ""
	}

	docs := b.documents
	if len(docs) > maxContextDocuments {
		docs = docs[:maxContextDocuments]
	}

	var sb strings.Builder
	sb.WriteString("\n\nRelevant Context from Product Catalog:\n")
	for i, doc := range docs {
		content := doc.Content
		if runes := []rune(content); len(runes) > maxDocumentRunes {
			content = string(runes[:maxDocumentRunes])
		}
		fmt.Fprintf(&sb, "\n--- Document %d ---\n", i+1)
		if doc.Source != "" {
			fmt.Fprintf(&sb, "Source: %s\n", doc.Source)
		}
		sb.WriteString(content)
		sb.WriteByte('\n')
	}
	return sb.String()
}
