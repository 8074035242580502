package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/studyrag/internal/ai"
	"github.com/xxxsen/studyrag/internal/model"
	appErr "github.com/xxxsen/studyrag/internal/pkg/errors"
)

const NoContextMessage = "No relevant context found."

type Retriever interface {
	Retrieve(ctx context.Context, documentID string, query string, topK int) ([]model.ScoredChunk, error)
	RetrieveAcrossAll(ctx context.Context, query string, topK int) ([]model.ScoredChunk, error)
}

type ChatAnswer struct {
	Answer   string              `json:"answer"`
	Grounded bool                `json:"grounded"`
	Sources  []model.ScoredChunk `json:"sources"`
}

// ChatService answers study questions with the retrieved chunks pasted into
// the prompt. Retrieval problems never fail the request; the answer is just
// ungrounded.
type ChatService struct {
	retriever Retriever
	generator ai.IGenerator
	topK      int
	timeout   time.Duration
}

func NewChatService(retriever Retriever, generator ai.IGenerator, topK int, timeout time.Duration) *ChatService {
	return &ChatService{retriever: retriever, generator: generator, topK: topK, timeout: timeout}
}

func (s *ChatService) Ask(ctx context.Context, documentID, question string) (*ChatAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", appErr.ErrInvalid)
	}
	if s.generator == nil {
		return nil, ai.ErrUnavailable
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", documentID))
	sources, err := s.retrieve(ctx, documentID, question)
	if err != nil {
		logger.Warn("retrieval failed, answering without context", zap.Error(err))
		sources = nil
	}
	if sources == nil {
		sources = []model.ScoredChunk{}
	}
	prompt := BuildPrompt(question, sources)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		logger.Error("failed to generate answer", zap.Error(err))
		return nil, err
	}
	return &ChatAnswer{
		Answer:   strings.TrimSpace(answer),
		Grounded: len(sources) > 0,
		Sources:  sources,
	}, nil
}

func (s *ChatService) retrieve(ctx context.Context, documentID, question string) ([]model.ScoredChunk, error) {
	if strings.TrimSpace(documentID) == "" {
		return s.retriever.RetrieveAcrossAll(ctx, question, s.topK)
	}
	return s.retriever.Retrieve(ctx, documentID, question, s.topK)
}

// BuildContext numbers the chunk texts in rank order.
func BuildContext(sources []model.ScoredChunk) string {
	if len(sources) == 0 {
		return NoContextMessage
	}
	var sb strings.Builder
	for i, src := range sources {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, strings.TrimSpace(src.Text))
	}
	return sb.String()
}

func BuildPrompt(question string, sources []model.ScoredChunk) string {
	return fmt.Sprintf(`You are a patient study assistant.
Answer the student's question using the study material below.
- If the material does not contain the answer, say so and answer from general knowledge.
- Use the same language as the question.

STUDY MATERIAL:
%s

QUESTION:
%s`, BuildContext(sources), question)
}
