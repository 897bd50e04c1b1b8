// Package search filters a journal collection by free text and by date.
// Text matching uses an in-memory bleve index built from the collection.
// Entry text and display time are each indexed as one lowercased term, so a
// query matches any case-insensitive substring, including partial words and
// runs of CJK characters.
package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/mesh-intelligence/moji/pkg/types"
)

// Query selects entries. Empty fields match everything.
type Query struct {
	// Text is matched as a substring of entry text or display time.
	Text string
	// Date is a UTC calendar date in types.DateLayout.
	Date string
	// Tag keeps only entries carrying this tag.
	Tag string
	// Mood keeps only entries with this mood.
	Mood types.Mood
}

// document is what gets indexed for one entry.
type document struct {
	Text        string `json:"text"`
	DisplayTime string `json:"displayTime"`
}

// lowerKeyword keeps a field as a single lowercased term.
const lowerKeyword = "lower_keyword"

func newMapping() (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(lowerKeyword, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("register analyzer: %w", err)
	}

	doc := bleve.NewDocumentMapping()
	for _, field := range []string{"text", "displayTime"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = lowerKeyword
		doc.AddFieldMappingsAt(field, fm)
	}
	m.DefaultMapping = doc
	return m, nil
}

// Filter returns the entries of coll that match q, in collection order.
func Filter(ctx context.Context, coll types.Collection, q Query) (types.Collection, error) {
	if q.Date != "" {
		if _, err := time.Parse(types.DateLayout, q.Date); err != nil {
			return nil, fmt.Errorf("date %q: want YYYY-MM-DD", q.Date)
		}
	}

	candidates := make(types.Collection, 0, len(coll))
	tag := strings.ToLower(strings.TrimPrefix(q.Tag, "#"))
	for _, e := range coll {
		if q.Date != "" && e.Date() != q.Date {
			continue
		}
		if tag != "" && !containsTag(e.Tags, tag) {
			continue
		}
		if q.Mood != "" && e.Mood != q.Mood {
			continue
		}
		candidates = append(candidates, e)
	}

	text := strings.TrimSpace(q.Text)
	if text == "" || len(candidates) == 0 {
		return candidates, nil
	}

	hits, err := match(ctx, candidates, text)
	if err != nil {
		return nil, err
	}
	out := make(types.Collection, 0, len(hits))
	for _, e := range candidates {
		if _, ok := hits[e.ID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// match indexes coll in memory and returns the ids matching text.
func match(ctx context.Context, coll types.Collection, text string) (map[string]struct{}, error) {
	m, err := newMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	defer idx.Close()

	batch := idx.NewBatch()
	for _, e := range coll {
		doc := document{Text: e.TextContent, DisplayTime: e.DisplayTime}
		if err := batch.Index(e.ID, doc); err != nil {
			return nil, fmt.Errorf("index entry %s: %w", e.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("index entries: %w", err)
	}

	req := bleve.NewSearchRequestOptions(buildQuery(text), len(coll), 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	ids := make(map[string]struct{}, len(res.Hits))
	for _, hit := range res.Hits {
		ids[hit.ID] = struct{}{}
	}
	return ids, nil
}

// buildQuery matches text as a case-insensitive substring of the entry
// text or of the display time.
func buildQuery(text string) query.Query {
	pattern := "(?s).*" + regexp.QuoteMeta(strings.ToLower(text)) + ".*"

	body := bleve.NewRegexpQuery(pattern)
	body.SetField("text")

	display := bleve.NewRegexpQuery(pattern)
	display.SetField("displayTime")

	return bleve.NewDisjunctionQuery(body, display)
}
