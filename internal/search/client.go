// Package search indexes announcements into Elasticsearch and queries them.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/nse-radar/internal/models"
	"github.com/DeafMist/nse-radar/internal/processing"
)

const (
	keywordLimit  = 10
	keywordMinLen = 3
)

var indexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "symbol":         {"type": "keyword"},
      "company_name":   {"type": "text"},
      "subject":        {"type": "text"},
      "details":        {"type": "text"},
      "broadcast_time": {"type": "date"},
      "attachment_url": {"type": "keyword", "index": false},
      "keywords":       {"type": "keyword"}
    }
  }
}`

// Client wraps go-elasticsearch for the announcements index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow the search endpoint query.
type SearchParams struct {
	Query  string
	Symbol string
	From   int
	Size   int
	Start  *time.Time
	End    *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64                         `json:"total"`
	Items []models.AnnouncementDocument `json:"items"`
}

// New instantiates the Elasticsearch client. transport may be nil.
func New(addr, index string, transport http.RoundTripper, logger *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger.With("component", "search")}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// Health reports cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// EnsureIndex creates the index with its mapping when missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		body := strings.TrimSpace(string(data))
		if strings.Contains(body, "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", body)
	}
	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// Document builds the indexed view of a record.
func Document(rec models.AnnouncementRecord) models.AnnouncementDocument {
	doc := models.AnnouncementDocument{
		ID:      processing.DocumentID(rec),
		Symbol:  rec.Symbol,
		Subject: processing.NormalizeText(rec.Subject),
	}
	if rec.CompanyName != nil {
		doc.CompanyName = processing.NormalizeText(*rec.CompanyName)
	}
	if rec.Details != nil {
		doc.Details = processing.NormalizeText(*rec.Details)
	}
	if rec.BroadcastTime != nil {
		doc.BroadcastTime = rec.BroadcastTime.UTC()
	}
	if rec.AttachmentURL != nil {
		doc.AttachmentURL = *rec.AttachmentURL
	}
	doc.Keywords = processing.ExtractKeywords(processing.CleanText(doc.Subject+" "+doc.Details), keywordLimit, keywordMinLen)
	return doc
}

func (c *Client) Name() string { return "elasticsearch" }

// Deliver indexes records in one bulk request. Document IDs come from the
// natural key, so re-delivery overwrites.
func (c *Client) Deliver(ctx context.Context, records []models.AnnouncementRecord) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		doc := Document(rec)
		meta := map[string]any{"index": map[string]any{"_index": c.index, "_id": doc.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("marshal bulk meta: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("marshal doc %s: %w", doc.ID, err)
		}
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "false",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk index failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range parsed.Items {
		for _, op := range item {
			if op.Error == nil {
				continue
			}
			failed++
			if first == "" {
				first = fmt.Sprintf("%s: %s: %s", op.ID, op.Error.Type, op.Error.Reason)
			}
		}
	}
	return fmt.Errorf("bulk index: %d of %d documents failed, first: %s", failed, len(records), first)
}

// SearchAnnouncements runs a bool query with optional filters, newest first.
func (c *Client) SearchAnnouncements(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 2)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"subject^2", "details", "company_name", "keywords"},
			},
		})
	}

	if params.Symbol != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"symbol": strings.ToUpper(params.Symbol)},
		})
	}

	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"broadcast_time": rangeQuery},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{{"match_all": map[string]any{}}}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort":             []map[string]any{{"broadcast_time": map[string]any{"order": "desc"}}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.AnnouncementDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.AnnouncementDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return &SearchResult{Total: parsed.Hits.Total.Value, Items: items}, nil
}
