package ai

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf16"
)

const DefaultHashDimension = 384

var nonWordRegex = regexp.MustCompile(`\W+`)

// dottedCapitalI keeps its dot when lower-cased: U+0130 becomes "i" plus
// U+0307, and the combining dot then splits the token. strings.ToLower alone
// would map it to a bare "i" and hash stored vectors differently.
var dottedCapitalI = strings.NewReplacer("\u0130", "i\u0307")

// HashEmbedder maps text to a hashed bag-of-words histogram, L2 normalized.
// It needs no network and is fully deterministic, but it only captures
// lexical overlap: two texts with the same meaning and no shared words score 0.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Embed(_ context.Context, text string, _ string) ([]float32, error) {
	return HashEmbed(text, h.dimension), nil
}

func (h *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash:%d", h.dimension)
}

func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

// HashEmbed lower-cases text, splits on runs of non-word characters, drops
// tokens of length <= 2 and counts every remaining token into bucket
// abs(hash) mod dimension. The result is L2 normalized unless it is all zero.
func HashEmbed(text string, dimension int) []float32 {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	counts := make([]float64, dimension)
	for _, token := range nonWordRegex.Split(strings.ToLower(dottedCapitalI.Replace(text)), -1) {
		if len(token) <= 2 {
			continue
		}
		idx := int64(tokenHash(token))
		if idx < 0 {
			idx = -idx
		}
		counts[idx%int64(dimension)]++
	}
	var norm float64
	for _, v := range counts {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, dimension)
	for i, v := range counts {
		if norm > 0 {
			v /= norm
		}
		out[i] = float32(v)
	}
	return out
}

// tokenHash is the 31x polynomial rolling hash over UTF-16 code units,
// wrapping at 32 bits.
func tokenHash(token string) int32 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(token)) {
		hash = (hash << 5) - hash + int32(unit)
	}
	return hash
}
