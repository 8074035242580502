package chunker

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
)

const (
	defaultMaxTokens     = 400
	defaultOverlapTokens = 80
)

// Chunker splits markdown study material into retrieval sized pieces. Level
// 1 and 2 headings start a new chunk and prefix every chunk below them.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

func New(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = defaultOverlapTokens
		if overlapTokens >= maxTokens {
			overlapTokens = 0
		}
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

func (c *Chunker) Chunk(ctx context.Context, markdown string) []string {
	logger := logutil.GetLogger(ctx)
	reader := text.NewReader([]byte(markdown))
	doc := goldmark.New().Parser().Parse(reader)
	source := reader.Source()

	var chunks []string
	var parts []string
	var tokens int
	var heading string

	flush := func(keepOverlap bool) {
		if len(parts) == 0 {
			return
		}
		content := strings.Join(parts, "\n\n")
		if heading != "" {
			content = heading + "\n" + content
		}
		chunks = append(chunks, content)
		if !keepOverlap || len(parts) < 2 {
			parts, tokens = nil, 0
			return
		}
		var kept []string
		keptTokens := 0
		for i := len(parts) - 1; i > 0; i-- {
			t := EstimateTokens(parts[i])
			if keptTokens+t > c.overlapTokens {
				break
			}
			keptTokens += t
			kept = append([]string{parts[i]}, kept...)
		}
		parts, tokens = kept, keptTokens
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok && h.Level <= 2 {
			flush(false)
			heading = extractText(h, source)
			continue
		}
		var txt string
		if code, ok := node.(*ast.FencedCodeBlock); ok {
			txt = codeText(code, source)
		} else {
			txt = extractText(node, source)
		}
		if txt == "" {
			continue
		}
		t := EstimateTokens(txt)
		if tokens > 0 && tokens+t > c.maxTokens {
			flush(true)
		}
		parts = append(parts, txt)
		tokens += t
	}
	flush(false)
	logger.Debug("markdown chunked", zap.Int("size", len(markdown)), zap.Int("chunks", len(chunks)))
	return chunks
}

// EstimateTokens counts words plus non-ASCII runes, which is close enough
// for both English and CJK text.
func EstimateTokens(s string) int {
	count := 0
	for _, r := range s {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(s))
	if count == 0 && len(s) > 0 {
		return 1
	}
	return count
}

func codeText(n *ast.FencedCodeBlock, source []byte) string {
	var sb strings.Builder
	for i := 0; i < n.Lines().Len(); i++ {
		line := n.Lines().At(i)
		sb.Write(line.Value(source))
	}
	return strings.TrimSpace(sb.String())
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := node.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
