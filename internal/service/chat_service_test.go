package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/studyrag/internal/ai"
	"github.com/xxxsen/studyrag/internal/model"
	appErr "github.com/xxxsen/studyrag/internal/pkg/errors"
	"github.com/xxxsen/studyrag/internal/rag"
)

type promptRecorder struct {
	prompt string
	err    error
}

func (p *promptRecorder) Generate(ctx context.Context, prompt string) (string, error) {
	p.prompt = prompt
	if p.err != nil {
		return "", p.err
	}
	return " the answer ", nil
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(ctx context.Context, documentID string, query string, topK int) ([]model.ScoredChunk, error) {
	return nil, errors.New("store down")
}

func (failingRetriever) RetrieveAcrossAll(ctx context.Context, query string, topK int) ([]model.ScoredChunk, error) {
	return nil, errors.New("store down")
}

func newRAG(t *testing.T) *rag.Service {
	t.Helper()
	adapter := ai.NewEmbeddingAdapter(ai.NewHashEmbedder(384))
	svc := rag.NewService(adapter, adapter.Fallback(), rag.NewMemoryStore())
	_, err := svc.Ingest(context.Background(), "bio", []string{
		"The mitochondria is the powerhouse of the cell.",
		"Photosynthesis converts light into chemical energy.",
	}, nil)
	require.NoError(t, err)
	return svc
}

func TestChatService_GroundedAnswer(t *testing.T) {
	gen := &promptRecorder{}
	chat := NewChatService(newRAG(t), gen, 1, 0)
	ans, err := chat.Ask(context.Background(), "bio", "What produces energy in a cell?")
	require.NoError(t, err)
	require.Equal(t, "the answer", ans.Answer)
	require.True(t, ans.Grounded)
	require.Len(t, ans.Sources, 1)
	require.Contains(t, gen.prompt, "[1] ")
	require.Contains(t, gen.prompt, "What produces energy in a cell?")
	require.NotContains(t, gen.prompt, NoContextMessage)
}

func TestChatService_NoContext(t *testing.T) {
	gen := &promptRecorder{}
	chat := NewChatService(newRAG(t), gen, 3, 0)
	ans, err := chat.Ask(context.Background(), "unknown-doc", "What is osmosis?")
	require.NoError(t, err)
	require.False(t, ans.Grounded)
	require.Empty(t, ans.Sources)
	require.Contains(t, gen.prompt, NoContextMessage)

	ans, err = NewChatService(failingRetriever{}, gen, 3, 0).Ask(context.Background(), "", "What is osmosis?")
	require.NoError(t, err)
	require.False(t, ans.Grounded)
}

func TestChatService_AcrossAllDocuments(t *testing.T) {
	gen := &promptRecorder{}
	ans, err := NewChatService(newRAG(t), gen, 2, 0).Ask(context.Background(), "", "chemical energy from light")
	require.NoError(t, err)
	require.True(t, ans.Grounded)
	require.Equal(t, "bio", ans.Sources[0].DocumentID)
	require.Equal(t, 1, ans.Sources[0].ChunkIndex)
}

func TestChatService_Errors(t *testing.T) {
	_, err := NewChatService(newRAG(t), &promptRecorder{}, 3, 0).Ask(context.Background(), "bio", " ")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = NewChatService(newRAG(t), nil, 3, 0).Ask(context.Background(), "bio", "question")
	require.ErrorIs(t, err, ai.ErrUnavailable)

	boom := errors.New("quota")
	_, err = NewChatService(newRAG(t), &promptRecorder{err: boom}, 3, 0).Ask(context.Background(), "bio", "question")
	require.ErrorIs(t, err, boom)
}

func TestBuildContext(t *testing.T) {
	require.Equal(t, NoContextMessage, BuildContext(nil))
	got := BuildContext([]model.ScoredChunk{{Text: "first "}, {Text: "second"}})
	require.Equal(t, "[1] first\n\n[2] second", got)
}
