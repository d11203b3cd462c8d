package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameRunes  = 100
	MaxKeywords   = 10
	FallbackName  = "Untitled document"
	promptRuneCap = 12000
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Completer is the completion capability the assistant drives.
type Completer interface {
	Complete(ctx context.Context, params CompletionParams, messages []ChatMessage) (string, error)
	StreamComplete(ctx context.Context, params CompletionParams, messages []ChatMessage, onChunk func(string) error) (string, error)
}

// Params holds per-operation decoding parameters.
type Params struct {
	Chat       CompletionParams
	Transform  CompletionParams
	Name       CompletionParams
	Keywords   CompletionParams
	Transcribe CompletionParams
}

// Turn is one prior exchange passed as chat context.
type Turn struct {
	Message string
	Reply   string
}

type Assistant struct {
	llm    Completer
	params Params
}

func NewAssistant(llm Completer, params Params) *Assistant {
	return &Assistant{llm: llm, params: params}
}

// Transform rewrites text according to spec.
func (a *Assistant) Transform(ctx context.Context, text, spec string) (string, error) {
	messages := []ChatMessage{
		TextMessage(roleSystem, "You transform documents according to a user specification. "+
			"Keep tables, figures, amounts and other numeric content exactly as written. "+
			"Return only the transformed document."),
		TextMessage(roleUser, fmt.Sprintf("Specification:\n%s\n\nDocument text:\n%s", spec, text)),
	}
	out, err := a.llm.Complete(ctx, a.params.Transform, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DeriveName asks for a short title. Uniqueness is the caller's concern.
func (a *Assistant) DeriveName(ctx context.Context, text string) (string, error) {
	messages := []ChatMessage{
		TextMessage(roleSystem, "You name documents. Reply with one short descriptive title on a single line, "+
			"at most 12 words, without quotes or trailing punctuation."),
		TextMessage(roleUser, clip(text, promptRuneCap)),
	}
	out, err := a.llm.Complete(ctx, a.params.Name, messages)
	if err != nil {
		return "", err
	}
	return CleanTitle(out), nil
}

// DeriveKeywords returns at most MaxKeywords distinct salient terms.
func (a *Assistant) DeriveKeywords(ctx context.Context, text string) ([]string, error) {
	messages := []ChatMessage{
		TextMessage(roleSystem, fmt.Sprintf("Extract up to %d salient keywords from the document. "+
			"Reply with a single comma separated list and nothing else.", MaxKeywords)),
		TextMessage(roleUser, clip(text, promptRuneCap)),
	}
	out, err := a.llm.Complete(ctx, a.params.Keywords, messages)
	if err != nil {
		return nil, err
	}
	return ParseKeywords(out), nil
}

// Answer replies to question using only grounding, with history as prior
// context in chronological order.
func (a *Assistant) Answer(ctx context.Context, grounding string, history []Turn, question string) (string, error) {
	return a.llm.Complete(ctx, a.params.Chat, answerMessages(grounding, history, question))
}

func (a *Assistant) StreamAnswer(ctx context.Context, grounding string, history []Turn, question string, onChunk func(string) error) (string, error) {
	return a.llm.StreamComplete(ctx, a.params.Chat, answerMessages(grounding, history, question), onChunk)
}

// Transcribe reads the text of a page image with a vision model.
func (a *Assistant) Transcribe(ctx context.Context, imageURL string) (string, error) {
	messages := []ChatMessage{
		TextMessage(roleSystem, "You transcribe scanned document pages. Return the page text in reading order and nothing else."),
		ImageMessage(roleUser, "Transcribe this page.", imageURL),
	}
	return a.llm.Complete(ctx, a.params.Transcribe, messages)
}

func answerMessages(grounding string, history []Turn, question string) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)*2+2)
	messages = append(messages, TextMessage(roleSystem,
		"You are a helpful assistant that answers only from the document below. "+
			"If the document does not contain the answer, say so.\n\nDocument:\n"+grounding))
	for _, t := range history {
		messages = append(messages, TextMessage(roleUser, t.Message), TextMessage(roleAssistant, t.Reply))
	}
	return append(messages, TextMessage(roleUser, question))
}

// CleanTitle reduces a model reply to a single-line title of at most
// MaxNameRunes runes.
func CleanTitle(raw string) string {
	line := ""
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	for _, prefix := range []string{"Title:", "title:", "TITLE:"} {
		line = strings.TrimPrefix(line, prefix)
	}
	line = strings.Trim(strings.TrimSpace(line), "\"'`*“”‘’")
	line = strings.Join(strings.Fields(line), " ")
	line = strings.TrimRight(line, ".")
	if line == "" {
		return FallbackName
	}
	return TruncateRunes(line, MaxNameRunes)
}

// ParseKeywords splits a comma or newline separated reply into trimmed,
// case-insensitively unique keywords.
func ParseKeywords(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, MaxKeywords)
	for _, f := range fields {
		kw := strings.Trim(strings.TrimSpace(f), "-*•.\"'")
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

// TruncateRunes cuts s to at most n runes, trimming trailing spaces.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
