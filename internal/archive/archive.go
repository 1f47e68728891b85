// Package archive keeps removed rumors as searchable folklore.
package archive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/hearsay/internal/embedding"
	"github.com/nidhogg/hearsay/internal/rumor"
	"github.com/nidhogg/hearsay/internal/vectorstore"
	"go.uber.org/zap"
)

// Collection is the vector collection holding archived rumors.
const Collection = "folklore"

// Index is the subset of the vector store the archive needs.
type Index interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection string, points ...vectorstore.Point) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64, match map[string]string) ([]*vectorstore.SearchResult, error)
}

var _ Index = (*vectorstore.Client)(nil)

// Entry is one archived rumor returned by a query.
type Entry struct {
	RumorID      string    `json:"rumor_id"`
	Content      string    `json:"content"`
	Original     string    `json:"original_content"`
	OriginatorID string    `json:"originator_id"`
	Reason       string    `json:"reason"`
	Confidence   float64   `json:"confidence"`
	Generation   int       `json:"generation"`
	ArchivedAt   time.Time `json:"archived_at"`
	Score        float32   `json:"score"`
}

type job struct {
	rumor  rumor.Rumor
	reason rumor.RemovalReason
}

// Archive embeds removed rumors and files them in the vector index.
// OnRumorRemoved only queues work; Run drains the queue.
type Archive struct {
	embedder embedding.Provider
	index    Index
	queue    chan job
	logger   *zap.Logger
}

// New creates an Archive with a queue of the given size.
func New(embedder embedding.Provider, index Index, queueSize int, logger *zap.Logger) *Archive {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Archive{
		embedder: embedder,
		index:    index,
		queue:    make(chan job, queueSize),
		logger:   logger,
	}
}

// Init ensures the folklore collection exists.
func (a *Archive) Init(ctx context.Context) error {
	dim := uint64(a.embedder.Dimension())
	if dim == 0 {
		dim = embedding.DefaultHashDimension
	}
	if err := a.index.EnsureCollection(ctx, Collection, dim); err != nil {
		return fmt.Errorf("init collection %s: %w", Collection, err)
	}
	return nil
}

// OnRumorRemoved queues the rumor for archiving, dropping it when the
// queue is full.
func (a *Archive) OnRumorRemoved(r rumor.Rumor, reason rumor.RemovalReason) {
	select {
	case a.queue <- job{rumor: r, reason: reason}:
	default:
		a.logger.Warn("archive queue full, rumor not archived",
			zap.String("rumor", r.ID))
	}
}

// Run archives queued rumors until ctx is cancelled, then drains what is
// already queued.
func (a *Archive) Run(ctx context.Context) {
	for {
		select {
		case j := <-a.queue:
			a.archiveLogged(j)
		case <-ctx.Done():
			for {
				select {
				case j := <-a.queue:
					a.archiveLogged(j)
				default:
					return
				}
			}
		}
	}
}

// archiveLogged runs detached from Run's context so shutdown still flushes.
func (a *Archive) archiveLogged(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Store(ctx, j.rumor, j.reason); err != nil {
		a.logger.Warn("archive rumor failed",
			zap.String("rumor", j.rumor.ID),
			zap.Error(err))
	}
}

// Store embeds one rumor and upserts it into the folklore collection.
func (a *Archive) Store(ctx context.Context, r rumor.Rumor, reason rumor.RemovalReason) error {
	vectors, err := a.embedder.Embed(ctx, []string{r.Content})
	if err != nil {
		return fmt.Errorf("embed rumor: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("empty embedding result")
	}

	err = a.index.Upsert(ctx, Collection, vectorstore.Point{
		ID:     pointID(r.ID),
		Vector: vectors[0],
		Payload: map[string]interface{}{
			"rumor_id":         r.ID,
			"content":          r.Content,
			"original_content": r.OriginalContent,
			"originator_id":    r.OriginatorID,
			"reason":           string(reason),
			"confidence":       r.Confidence,
			"generation":       r.Generation,
			"archived_at":      time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return err
	}
	a.logger.Debug("rumor archived",
		zap.String("rumor", r.ID),
		zap.String("reason", string(reason)))
	return nil
}

// Query returns the topK archived rumors closest to text.
func (a *Archive) Query(ctx context.Context, text string, topK int) ([]Entry, error) {
	return a.search(ctx, text, topK, nil)
}

// QueryReason is Query restricted to rumors removed for reason.
func (a *Archive) QueryReason(ctx context.Context, text string, topK int, reason rumor.RemovalReason) ([]Entry, error) {
	return a.search(ctx, text, topK, map[string]string{"reason": string(reason)})
}

func (a *Archive) search(ctx context.Context, text string, topK int, match map[string]string) ([]Entry, error) {
	if topK <= 0 {
		return []Entry{}, nil
	}
	vectors, err := a.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return []Entry{}, nil
	}

	hits, err := a.index.Search(ctx, Collection, vectors[0], uint64(topK), match)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(hits))
	for _, h := range hits {
		out = append(out, toEntry(h))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func toEntry(h *vectorstore.SearchResult) Entry {
	e := Entry{Score: h.Score}
	e.RumorID, _ = h.Payload["rumor_id"].(string)
	e.Content, _ = h.Payload["content"].(string)
	e.Original, _ = h.Payload["original_content"].(string)
	e.OriginatorID, _ = h.Payload["originator_id"].(string)
	e.Reason, _ = h.Payload["reason"].(string)
	e.Confidence, _ = h.Payload["confidence"].(float64)
	switch g := h.Payload["generation"].(type) {
	case int64:
		e.Generation = int(g)
	case int:
		e.Generation = g
	}
	if s, ok := h.Payload["archived_at"].(string); ok {
		e.ArchivedAt, _ = time.Parse(time.RFC3339, s)
	}
	if e.RumorID == "" {
		e.RumorID = h.ID
	}
	return e
}

// pointID maps a rumor id onto the UUID space the index requires.
func pointID(rumorID string) string {
	if id, err := uuid.Parse(rumorID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(rumorID)).String()
}
