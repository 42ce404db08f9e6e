package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxClaims    = "dossier_claims"
	idxQuestions = "dossier_questions"
	idxSources   = "dossier_sources"
)

type indexDef struct {
	uid        string
	rtyp       ResultType
	filterable []string
	searchable []string
}

var indexDefs = []indexDef{
	{uid: idxClaims, rtyp: ResultClaim, filterable: []string{"dossierId", "status", "kind"}, searchable: []string{"text"}},
	{uid: idxQuestions, rtyp: ResultQuestion, filterable: []string{"dossierId", "status", "responsibility"}, searchable: []string{"text"}},
	{uid: idxSources, rtyp: ResultSource, filterable: []string{"dossierId", "type"}, searchable: []string{"title", "publisher", "snippet"}},
}

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server leaves the client unhealthy; the health loop retries.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	for _, def := range indexDefs {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: def.uid, PrimaryKey: "key"}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", def.uid, err)
		}

		index := m.client.Index(def.uid)
		filterable := make([]interface{}, len(def.filterable))
		for i, v := range def.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", def.uid, err)
		}
		searchable := def.searchable
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", def.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the matching indexes in one multi-search and merges hits.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	for _, def := range indexDefs {
		if q.FilterType != "" && q.FilterType != def.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              def.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}
		if q.FilterDossierID != "" {
			sr.Filter = []string{fmt.Sprintf("dossierId = %q", q.FilterDossierID)}
		}
		queries = append(queries, sr)
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	for _, def := range indexDefs {
		if def.uid == uid {
			return def.rtyp
		}
	}
	return ""
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{
		Type:      rtyp,
		ID:        decodeString(hit, "id"),
		DossierID: decodeString(hit, "dossierId"),
		Status:    decodeString(hit, "status"),
	}
	switch rtyp {
	case ResultClaim, ResultQuestion:
		r.Title = decodeString(hit, "text")
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "text"), r.Title)
	case ResultSource:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"), decodeString(hit, "url"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "snippet"), decodeString(hit, "snippet"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexClaims(claims []ClaimRecord) error {
	if len(claims) == 0 {
		return nil
	}
	_, err := m.client.Index(idxClaims).AddDocuments(claims, nil)
	return err
}

func (m *Meili) IndexQuestions(questions []QuestionRecord) error {
	if len(questions) == 0 {
		return nil
	}
	_, err := m.client.Index(idxQuestions).AddDocuments(questions, nil)
	return err
}

func (m *Meili) IndexSources(sources []SourceRecord) error {
	if len(sources) == 0 {
		return nil
	}
	_, err := m.client.Index(idxSources).AddDocuments(sources, nil)
	return err
}
