package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// SearchOptions tunes a web search. Zero values fall back to the defaults.
type SearchOptions struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
}

// Defaults returns o with Count defaulted to 10.
func (o SearchOptions) Defaults() SearchOptions {
	if o.Count <= 0 {
		o.Count = 10
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// SearchResult is one web or local search hit.
type SearchResult struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ParseSearchResults turns the text body of a search tool result into hits.
// It accepts a JSON array, a JSON object with a "results" array, or the
// plain-text layout of blank-line separated "Title:/Description:/URL:" blocks.
func ParseSearchResults(text string) []SearchResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return []SearchResult{}
	}

	if strings.HasPrefix(text, "[") {
		var hits []SearchResult
		if err := json.Unmarshal([]byte(text), &hits); err == nil {
			return hits
		}
	}
	if strings.HasPrefix(text, "{") {
		var wrapped struct {
			Results []SearchResult `json:"results"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Results != nil {
			return wrapped.Results
		}
	}

	results := []SearchResult{}
	for _, block := range splitBlocks(text) {
		var r SearchResult
		for _, line := range strings.Split(block, "\n") {
			key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "title", "name":
				r.Title = value
			case "description":
				r.Description = value
			case "url":
				r.URL = value
			}
		}
		if r.Title != "" || r.URL != "" {
			results = append(results, r)
		}
	}
	return results
}

func splitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []string
	for _, b := range strings.Split(text, "\n\n") {
		if b = strings.TrimSpace(b); b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// VectorSearchOptions tunes a vector index search.
type VectorSearchOptions struct {
	TopK   int            `json:"topK"`
	Filter map[string]any `json:"filter,omitempty"`
}

// Defaults returns o with TopK defaulted to 10.
func (o VectorSearchOptions) Defaults() VectorSearchOptions {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	return o
}

// VectorRecord is one record read from or written to a vector index.
type VectorRecord struct {
	ID     string         `json:"id,omitempty"`
	Score  float64        `json:"score,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// UnmarshalJSON accepts both the search hit layout ({_id, _score, fields})
// and the flat upsert layout ({id, ...fields}).
func (r *VectorRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = VectorRecord{}
	for _, key := range []string{"_id", "id"} {
		if v, ok := raw[key].(string); ok {
			r.ID = v
			delete(raw, key)
		}
	}
	for _, key := range []string{"_score", "score"} {
		if v, ok := raw[key].(float64); ok {
			r.Score = v
			delete(raw, key)
		}
	}
	if fields, ok := raw["fields"].(map[string]any); ok {
		r.Fields = fields
		return nil
	}
	if len(raw) > 0 {
		r.Fields = raw
	}
	return nil
}

// UpsertRecord returns the flat layout accepted by upsert tools.
func (r VectorRecord) UpsertRecord() map[string]any {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.ID != "" {
		out["id"] = r.ID
	}
	return out
}

// recordPaths are the locations, in order, where vector tools put their
// result list.
var recordPaths = []string{"records", "result.hits", "matches"}

// ParseVectorRecords decodes the text body of a vector search result. It
// accepts {"records": [...]}, the index search layout {"result": {"hits": [...]}},
// {"matches": [...]} or a bare array.
func ParseVectorRecords(text string) ([]VectorRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []VectorRecord{}, nil
	}
	if !gjson.Valid(text) {
		return nil, errors.New("vector result is not valid JSON")
	}

	list := gjson.Parse(text)
	if !list.IsArray() {
		list = gjson.Result{}
		for _, path := range recordPaths {
			if r := gjson.Get(text, path); r.IsArray() {
				list = r
				break
			}
		}
	}
	if !list.Exists() {
		return []VectorRecord{}, nil
	}

	recs := []VectorRecord{}
	if err := json.Unmarshal([]byte(list.Raw), &recs); err != nil {
		return nil, fmt.Errorf("decode vector records: %w", err)
	}
	return recs, nil
}
