// Package fulltext maintains a Bleve index over note text. It backs the
// phrase-search endpoint and is rebuilt wholesale by the reconstruct
// workflow's reindex step.
package fulltext

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/kizuna/internal/models"
)

// noteDoc is the shape indexed per note.
type noteDoc struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
	Category string   `json:"category"`
}

// PhraseHit is one full-text phrase match.
type PhraseHit struct {
	NoteID string  `json:"note_id"`
	Score  float64 `json:"score"`
}

// NoteIndex wraps a Bleve index keyed by note id.
type NoteIndex struct {
	index bleve.Index
}

// NewNoteIndex creates or opens a Bleve index at path.
// The standard analyzer (lowercase + tokenize, no stemming) keeps exact words
// searchable; stemming analyzers mangle mixed Japanese/English note text.
func NewNoteIndex(path string) (*NoteIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("category", keywordFieldMapping)
	im.AddDocumentMapping("note", docMapping)
	im.DefaultType = "note"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open full-text index: %w", openErr)
		}
		return &NoteIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create full-text index: %w", err)
	}
	return &NoteIndex{index: index}, nil
}

// NewMemNoteIndex creates an in-memory index, used by tests.
func NewMemNoteIndex() (*NoteIndex, error) {
	im := bleve.NewIndexMapping()
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	return &NoteIndex{index: index}, nil
}

// Index adds or replaces the note in the index.
func (n *NoteIndex) Index(ctx context.Context, note *models.Note) error {
	return n.index.Index(note.ID, noteDoc{
		Title:    note.Title,
		Content:  note.Content,
		Tags:     note.Tags,
		Category: note.Category,
	})
}

// Delete removes the note from the index.
func (n *NoteIndex) Delete(ctx context.Context, noteID string) error {
	return n.index.Delete(noteID)
}

// Reindex replaces the whole index content with the given notes in one batch.
func (n *NoteIndex) Reindex(ctx context.Context, notes []*models.Note) error {
	count, err := n.index.DocCount()
	if err != nil {
		return fmt.Errorf("failed to read doc count: %w", err)
	}
	if count > 0 {
		// Bleve has no truncate; walk the ids and delete in a batch.
		all := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		all.Size = int(count)
		existing, err := n.index.Search(all)
		if err != nil {
			return fmt.Errorf("failed to list indexed notes: %w", err)
		}
		del := n.index.NewBatch()
		for _, hit := range existing.Hits {
			del.Delete(hit.ID)
		}
		if err := n.index.Batch(del); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	batch := n.index.NewBatch()
	for _, note := range notes {
		if err := batch.Index(note.ID, noteDoc{
			Title:    note.Title,
			Content:  note.Content,
			Tags:     note.Tags,
			Category: note.Category,
		}); err != nil {
			return fmt.Errorf("failed to batch note %s: %w", note.ID, err)
		}
	}
	return n.index.Batch(batch)
}

// PhraseSearch finds notes containing the query as an adjacent-terms phrase
// in title or content.
func (n *NoteIndex) PhraseSearch(ctx context.Context, phrase string, limit int) ([]*PhraseHit, error) {
	if limit <= 0 {
		limit = 10
	}

	contentQuery := bleve.NewMatchPhraseQuery(phrase)
	contentQuery.SetField("content")
	titleQuery := bleve.NewMatchPhraseQuery(phrase)
	titleQuery.SetField("title")
	q := bleve.NewDisjunctionQuery(contentQuery, titleQuery)

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := n.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("phrase search failed: %w", err)
	}

	out := make([]*PhraseHit, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &PhraseHit{NoteID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DocCount returns the number of indexed notes.
func (n *NoteIndex) DocCount() (uint64, error) {
	return n.index.DocCount()
}

// Close closes the underlying index.
func (n *NoteIndex) Close() error {
	return n.index.Close()
}
