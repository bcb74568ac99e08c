package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/docsbase/backend/internal/config"
	"github.com/docsbase/backend/internal/docstore"
	"github.com/docsbase/backend/internal/embedding"
	"github.com/docsbase/backend/internal/llm"
	"github.com/docsbase/backend/internal/models"
	"github.com/docsbase/backend/internal/vectorstore"
)

type EventType string

const (
	// EventNotification carries the chat id and generated title on the first
	// turn, before any token arrives.
	EventNotification EventType = "notification"
	EventToken        EventType = "token"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

type Event struct {
	Type   EventType
	ChatID uuid.UUID
	Title  string
	Token  string
	Err    error
}

type Request struct {
	OwnerID string
	Doc     *models.Document
	// ChatID is uuid.Nil on the first turn; the responder then creates the
	// chat lazily and announces it via a notification event.
	ChatID        uuid.UUID
	Messages      []llm.Message
	SearchEnabled bool
}

// Responder answers questions about a crawled document: retrieve the nearest
// chunks scoped to the document's crawl job, ground the model with them, and
// stream the answer token by token.
type Responder struct {
	store    docstore.Store
	embedder embedding.Embedder
	index    vectorstore.Index
	gateway  llm.Gateway
	llmCfg   config.LLMConfig
	chatCfg  config.ChatConfig
}

func NewResponder(store docstore.Store, embedder embedding.Embedder, index vectorstore.Index, gateway llm.Gateway, llmCfg config.LLMConfig, chatCfg config.ChatConfig) *Responder {
	return &Responder{
		store:    store,
		embedder: embedder,
		index:    index,
		gateway:  gateway,
		llmCfg:   llmCfg,
		chatCfg:  chatCfg,
	}
}

const defaultSystemPrompt = "You are a helpful assistant."

const groundedSystemPrompt = `You are a helpful assistant answering questions about the documentation indexed below. Ground your answers in the numbered excerpts and cite their sources where relevant. If the excerpts do not cover the question, say so.

%s`

// Respond validates the turn, then runs retrieval, title generation and
// streaming in a goroutine. Validation failures surface as an error return;
// everything after the stream starts surfaces as events on the channel, which
// always ends with exactly one done or error event.
func (r *Responder) Respond(ctx context.Context, req Request) (<-chan Event, error) {
	question := latestUserText(req.Messages)
	if question == "" {
		return nil, fmt.Errorf("no user message in request")
	}
	if req.Doc == nil {
		return nil, fmt.Errorf("no document in request")
	}

	chatID := req.ChatID
	if chatID != uuid.Nil {
		if _, err := r.store.GetChat(ctx, chatID, req.OwnerID); err != nil {
			return nil, fmt.Errorf("resolve chat: %w", err)
		}
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		r.run(ctx, req, question, chatID, events)
	}()
	return events, nil
}

func (r *Responder) run(ctx context.Context, req Request, question string, chatID uuid.UUID, events chan<- Event) {
	matches := r.retrieve(ctx, req.Doc.CrawlJobID, question)

	if chatID == uuid.Nil {
		title := r.generateTitle(ctx, question, contextBlock(matches))
		created, err := r.store.CreateChat(ctx, req.OwnerID, req.Doc.ID, title)
		if err != nil {
			events <- Event{Type: EventError, Err: fmt.Errorf("create chat: %w", err)}
			return
		}
		chatID = created.ID
		events <- Event{Type: EventNotification, ChatID: chatID, Title: title}
	}

	if _, err := r.store.CreateMessage(ctx, docstore.CreateMessageRequest{
		ChatID:     chatID,
		DocumentID: req.Doc.ID,
		OwnerID:    req.OwnerID,
		Role:       models.RoleUser,
		Parts:      TextParts(question),
	}); err != nil {
		events <- Event{Type: EventError, Err: fmt.Errorf("persist user message: %w", err)}
		return
	}

	messages := make([]llm.Message, 0, len(req.Messages)+1)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt(matches)})
	messages = append(messages, req.Messages...)

	stream, err := r.gateway.ChatStream(ctx, llm.ChatRequest{
		Provider:  r.llmCfg.DefaultProvider,
		Model:     r.llmCfg.ChatModel,
		Messages:  messages,
		WebSearch: req.SearchEnabled,
	})
	if err != nil {
		events <- Event{Type: EventError, Err: fmt.Errorf("start stream: %w", err)}
		return
	}

	var answer strings.Builder
	for chunk := range stream {
		if chunk.Error != nil {
			events <- Event{Type: EventError, Err: chunk.Error}
			return
		}
		if chunk.Content != "" {
			answer.WriteString(chunk.Content)
			select {
			case events <- Event{Type: EventToken, Token: chunk.Content}:
			case <-ctx.Done():
				// Client went away mid-answer; the partial assistant turn is
				// discarded rather than persisted.
				return
			}
		}
		if chunk.Done {
			break
		}
	}

	if ctx.Err() != nil {
		return
	}

	if _, err := r.store.CreateMessage(ctx, docstore.CreateMessageRequest{
		ChatID:     chatID,
		DocumentID: req.Doc.ID,
		OwnerID:    req.OwnerID,
		Role:       models.RoleAssistant,
		Parts:      TextParts(answer.String()),
	}); err != nil {
		events <- Event{Type: EventError, Err: fmt.Errorf("persist assistant message: %w", err)}
		return
	}

	events <- Event{Type: EventDone, ChatID: chatID}
}

// retrieve embeds the question and queries the index scoped to the crawl job.
// Both steps degrade to an empty context on failure so a vector outage
// downgrades answer quality instead of killing the turn.
func (r *Responder) retrieve(ctx context.Context, crawlJobID, question string) []vectorstore.Match {
	if crawlJobID == "" {
		return nil
	}

	vector, err := r.embedder.EmbedSingle(ctx, question)
	if err != nil {
		slog.Warn("question embedding failed, answering without retrieved context",
			"crawl_job_id", crawlJobID, "error", err)
		return nil
	}

	matches, err := r.index.Query(ctx, vector, vectorstore.QueryOptions{
		CrawlJobID: crawlJobID,
		TopK:       r.chatCfg.TopK,
	})
	if err != nil {
		slog.Warn("vector query failed, answering without retrieved context",
			"crawl_job_id", crawlJobID, "error", err)
		return nil
	}
	return matches
}

func systemPrompt(matches []vectorstore.Match) string {
	block := contextBlock(matches)
	if block == "" {
		return defaultSystemPrompt
	}
	return fmt.Sprintf(groundedSystemPrompt, block)
}

func contextBlock(matches []vectorstore.Match) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		title := m.Title
		if title == "" {
			title = m.URL
		}
		fmt.Fprintf(&b, "[%d] **%s**\n%s\n(Source: %s)", i+1, title, m.Snippet, m.URL)
	}
	return b.String()
}

const titlePrompt = "Generate a short title of at most six words for a conversation that starts with the following question. Respond with the title only, no quotes or punctuation around it."

// generateTitle asks a small model to name the chat, with the retrieved
// documentation alongside the question so the title reflects the subject
// matter. Any failure falls back to a truncation of the question itself; a
// chat must never fail to open because its title could not be generated.
func (r *Responder) generateTitle(ctx context.Context, question, docContext string) string {
	content := question
	if docContext != "" {
		content = fmt.Sprintf("Documentation context:\n%s\n\nQuestion: %s", docContext, question)
	}
	resp, err := r.gateway.Chat(ctx, llm.ChatRequest{
		Provider: r.llmCfg.DefaultProvider,
		Model:    r.llmCfg.TitleModel,
		Messages: []llm.Message{
			{Role: "system", Content: titlePrompt},
			{Role: "user", Content: content},
		},
		MaxTokens: 32,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		slog.Warn("title generation failed, falling back to question text", "error", err)
		return fallbackTitle(question)
	}
	return strings.TrimSpace(resp.Content)
}

const fallbackTitleLimit = 60

func fallbackTitle(question string) string {
	question = strings.TrimSpace(question)
	runes := []rune(question)
	if len(runes) <= fallbackTitleLimit {
		return question
	}
	return string(runes[:fallbackTitleLimit])
}

func latestUserText(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextParts encodes plain text in the message parts format stored alongside
// each turn.
func TextParts(text string) json.RawMessage {
	parts, _ := json.Marshal([]textPart{{Type: "text", Text: text}})
	return parts
}
