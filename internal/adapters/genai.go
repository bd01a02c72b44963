package adapters

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GenAIAdapter generates plan drafts with Google's Gemini API, using one
// chat per thread handle so repeat adjustments keep their conversation
// context instead of re-transmitting plan history.
type GenAIAdapter struct {
	client *genai.Client
	model  string

	mu    sync.Mutex
	chats map[string]*genai.Chat
}

// NewGenAIAdapter creates an adapter bound to the given model.
func NewGenAIAdapter(ctx context.Context, apiKey, model string) (*GenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("model API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIAdapter{
		client: client,
		model:  model,
		chats:  make(map[string]*genai.Chat),
	}, nil
}

func (a *GenAIAdapter) Name() string {
	return fmt.Sprintf("genai:%s", a.model)
}

// NewThread mints a handle for a fresh conversation. The chat itself is
// created lazily on first use so a restart can re-attach to a stored handle.
func (a *GenAIAdapter) NewThread(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func (a *GenAIAdapter) GeneratePlan(ctx context.Context, req Request) ([]byte, error) {
	chat, err := a.chatFor(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(req)
	resp, err := chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		return nil, fmt.Errorf("genai generate: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("genai returned an empty response")
	}
	return []byte(text), nil
}

func (a *GenAIAdapter) chatFor(ctx context.Context, threadID string) (*genai.Chat, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if chat, ok := a.chats[threadID]; ok {
		return chat, nil
	}

	chat, err := a.client.Chats.Create(ctx, a.model, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   draftSchema(),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("create genai chat: %w", err)
	}
	a.chats[threadID] = chat
	return chat, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	if req.Instruction == "" {
		b.WriteString("Turn the following idea into a three-level execution plan ")
		b.WriteString("(outcomes, deliverables per outcome, actions per deliverable). ")
		b.WriteString("Echo the idea verbatim in the idea field.\n\nIdea: ")
		b.WriteString(req.Idea)
	} else {
		b.WriteString("Revise the plan for the idea below according to the instruction, ")
		b.WriteString("re-emitting the complete structure. Echo the idea verbatim in ")
		b.WriteString("the idea field.\n\nIdea: ")
		b.WriteString(req.Idea)
		b.WriteString("\n\nInstruction: ")
		b.WriteString(req.Instruction)
	}
	if len(req.Research) > 0 {
		b.WriteString("\n\nResearch notes:\n")
		for _, snippet := range req.Research {
			b.WriteString("- ")
			b.WriteString(snippet)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// draftSchema mirrors draft.Draft so the model is constrained to emit a
// parseable structure.
func draftSchema() *genai.Schema {
	statusSchema := &genai.Schema{
		Type: genai.TypeString,
		Enum: []string{"todo", "doing", "done"},
	}
	actionSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":  {Type: genai.TypeString},
			"status": statusSchema,
		},
		Required: []string{"title", "status"},
	}
	deliverableSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":     {Type: genai.TypeString},
			"done_when": {Type: genai.TypeString},
			"notes":     {Type: genai.TypeString},
			"status":    statusSchema,
			"actions": {
				Type:  genai.TypeArray,
				Items: actionSchema,
			},
		},
		Required: []string{"title", "done_when", "status", "actions"},
	}
	outcomeSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":   {Type: genai.TypeString},
			"summary": {Type: genai.TypeString},
			"status":  statusSchema,
			"deliverables": {
				Type:  genai.TypeArray,
				Items: deliverableSchema,
			},
		},
		Required: []string{"title", "status", "deliverables"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"idea":    {Type: genai.TypeString},
			"title":   {Type: genai.TypeString},
			"summary": {Type: genai.TypeString},
			"outcomes": {
				Type:  genai.TypeArray,
				Items: outcomeSchema,
			},
		},
		Required: []string{"idea", "title", "outcomes"},
	}
}
