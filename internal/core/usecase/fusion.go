package usecase

import (
	"math"
	"sort"

	"github.com/feiyangfan/search-hub/internal/core/domain"
)

const snippetMaxChars = 280

// fusedDocument is the per-document fusion accumulator. Ranks are
// 1-indexed; 0 means the document is absent from that source.
type fusedDocument struct {
	ID      string
	Title   string
	Snippet string
	URL     string
	Score   float64

	lexicalRank  int
	semanticRank int
}

func (d *fusedDocument) item() domain.SearchResultItem {
	return domain.SearchResultItem{
		ID:      d.ID,
		Title:   d.Title,
		Snippet: d.Snippet,
		Score:   d.Score,
		URL:     d.URL,
	}
}

// needsMetadata reports whether the document surfaced only through the
// semantic path and still lacks display metadata.
func (d *fusedDocument) needsMetadata() bool {
	return d.lexicalRank == 0 && d.Title == ""
}

// fuseRRF merges a lexical ranking and a semantic (chunk-level) ranking
// with Reciprocal Rank Fusion. Two passes: the first collects each
// document's best rank per source, the second sums the 1/(rrfK+rank)
// contributions. A document with several chunks in the semantic list
// contributes only its best-ranked chunk, so verbose documents cannot
// dominate through repeated chunk matches.
//
// The result is sorted by fused score descending; among equal scores the
// first-seen document (lexical order, then semantic order) wins. Scores
// are rounded to 6 decimals before sorting so the order is deterministic.
func fuseRRF(lexical []domain.SearchResultItem, semantic []domain.SemanticResult, rrfK int) []*fusedDocument {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedDocument, len(lexical)+len(semantic))
	order := make([]*fusedDocument, 0, len(lexical)+len(semantic))

	// Pass 1: best rank per source plus display metadata. Lexical
	// metadata is preferred; semantic-only documents keep their
	// best-ranked chunk text as a provisional snippet.
	for i, item := range lexical {
		doc, ok := acc[item.ID]
		if !ok {
			doc = &fusedDocument{ID: item.ID}
			acc[item.ID] = doc
			order = append(order, doc)
		}
		if doc.lexicalRank == 0 {
			doc.lexicalRank = i + 1
			doc.Title = item.Title
			doc.Snippet = truncateSnippet(item.Snippet)
			doc.URL = item.URL
		}
	}
	for i, result := range semantic {
		doc, ok := acc[result.DocumentID]
		if !ok {
			doc = &fusedDocument{ID: result.DocumentID}
			acc[result.DocumentID] = doc
			order = append(order, doc)
		}
		if doc.semanticRank == 0 {
			doc.semanticRank = i + 1
			if doc.lexicalRank == 0 && doc.Snippet == "" {
				doc.Snippet = truncateSnippet(result.Content)
			}
		}
	}

	// Pass 2: sum RRF contributions.
	for _, doc := range order {
		score := 0.0
		if doc.lexicalRank > 0 {
			score += 1.0 / float64(rrfK+doc.lexicalRank)
		}
		if doc.semanticRank > 0 {
			score += 1.0 / float64(rrfK+doc.semanticRank)
		}
		doc.Score = roundScore(score)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Score > order[j].Score
	})
	return order
}

// roundScore fixes RRF scores at 6 decimal places for stable output.
func roundScore(score float64) float64 {
	return math.Round(score*1e6) / 1e6
}

func truncateSnippet(s string) string {
	if len(s) <= snippetMaxChars {
		return s
	}
	cut := snippetMaxChars
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isRuneStart(b byte) bool {
	return b&0xc0 != 0x80
}
