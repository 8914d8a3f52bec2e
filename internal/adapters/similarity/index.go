// Package similarity keeps an embedding index of past risky messages and
// answers template-reuse queries against it.
package similarity

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

const (
	collectionName = "risky_messages"

	// minSimilarity filters out noise matches before they reach the caller.
	minSimilarity = 0.3
)

// Index implements core.SimilarityIndex on an in-process vector store. The
// embedding source is pluggable; the default is a deterministic local
// bag-of-words embedding that needs no network.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
	mu         sync.RWMutex
	count      int
}

// NewIndex builds an index over the given embedding function. Pass nil to use
// the local embedder.
func NewIndex(embed chromem.EmbeddingFunc, logger *zap.Logger) (*Index, error) {
	if embed == nil {
		embed = LocalEmbedding
	}
	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("creating similarity collection: %w", err)
	}
	return &Index{db: db, collection: collection, logger: logger}, nil
}

// Add indexes a risky message. Re-adding the same message ID replaces the
// previous entry.
func (ix *Index) Add(ctx context.Context, msg *core.Message, tier core.RiskTier) error {
	doc := chromem.Document{
		ID:      msg.ID,
		Content: embedText(msg),
		Metadata: map[string]string{
			"from":    msg.From,
			"subject": msg.Subject,
			"tier":    string(tier),
		},
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("indexing message %s: %w", msg.ID, err)
	}
	ix.count = ix.collection.Count()

	ix.logger.Debug("Message indexed for template reuse",
		zap.String("message_id", msg.ID),
		zap.String("tier", string(tier)),
		zap.Int("index_size", ix.count))
	return nil
}

// Query returns the closest indexed message. An empty index or a best match
// below the noise floor reports no match.
func (ix *Index) Query(ctx context.Context, msg *core.Message) (*core.SimilarityMatch, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.count == 0 {
		return &core.SimilarityMatch{}, nil
	}

	results, err := ix.collection.Query(ctx, embedText(msg), 1, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying similarity index: %w", err)
	}
	if len(results) == 0 {
		return &core.SimilarityMatch{}, nil
	}

	best := results[0]
	sim := math.Round(float64(best.Similarity)*1000.0) / 1000.0
	if sim < minSimilarity {
		return &core.SimilarityMatch{}, nil
	}

	return &core.SimilarityMatch{
		Found:      true,
		From:       best.Metadata["from"],
		Subject:    best.Metadata["subject"],
		Similarity: sim,
	}, nil
}

// embedText builds the text embedded for a message. Case is normalized so
// shouting variants of the same template still match.
func embedText(msg *core.Message) string {
	return strings.ToLower(msg.Subject + " " + msg.Body)
}

// localEmbeddingDim is sized so token collisions stay rare for email-length
// texts while vectors stay cheap to compare.
const localEmbeddingDim = 512

// LocalEmbedding is a deterministic hashed term-frequency embedding. Cosine
// similarity over it behaves like classic TF template matching, which is
// enough for near-duplicate campaign detection without a model dependency.
func LocalEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, localEmbeddingDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]<>")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%localEmbeddingDim]++
	}

	// chromem expects unit-length vectors for its cosine shortcut.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
