package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// startChat configures a model session with the request's history; the final
// non-system message is returned separately because it is the one sent.
func (p *GeminiProvider) startChat(req *ChatRequest) (*genai.ChatSession, genai.Part) {
	model := p.client.GenerativeModel(req.Model)
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if len(req.StopSequences) > 0 {
		model.StopSequences = req.StopSequences
	}

	var system []string
	var turns []Message
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(system) > 0 {
		model.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(system, "\n\n")))
	}

	last := genai.Text("")
	if len(turns) > 0 {
		last = genai.Text(turns[len(turns)-1].Content)
		turns = turns[:len(turns)-1]
	}

	session := model.StartChat()
	for _, m := range turns {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return session, last
}

func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	session, last := p.startChat(req)

	resp, err := session.SendMessage(ctx, last)
	if err != nil {
		return nil, err
	}

	out := &ChatResponse{
		ID:      uuid.New().String(),
		Content: p.extractContent(resp),
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = resp.Candidates[0].FinishReason.String()
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func (p *GeminiProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	session, last := p.startChat(req)
	iter := session.SendMessageStream(ctx, last)

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)

		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				chunks <- StreamChunk{Done: true}
				return
			}
			if err != nil {
				chunks <- StreamChunk{Error: err, Done: true}
				return
			}
			if content := p.extractContent(resp); content != "" {
				chunks <- StreamChunk{Content: content}
			}
		}
	}()

	return chunks, nil
}

func (p *GeminiProvider) extractContent(resp *genai.GenerateContentResponse) string {
	var content strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			fmt.Fprintf(&content, "%v", part)
		}
	}
	return content.String()
}
