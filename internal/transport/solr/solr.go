// Package solr implements the keyword retrieval backend over the Solr
// select API. Solr speaks plain HTTP/JSON, so the adapter is a hand-written
// client: per-call deadlines come from the dispatcher's context, never from
// the http.Client.
package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
)

// Config holds Solr connection settings.
type Config struct {
	URL        string            // base URL including the solr root, e.g. http://localhost:8983/solr
	Collection string            // collection queried by every select
	Filters    map[string]string // static fq clauses applied to every search
	Logger     *zap.Logger
}

// Adapter is the keyword backend. It maps Solr documents to items carrying
// their raw relevance scores; normalization happens later during fusion.
type Adapter struct {
	baseURL    string
	collection string
	filters    map[string]string
	client     *http.Client
	logger     *zap.Logger
}

// New creates a Solr keyword adapter.
func New(cfg *Config) *Adapter {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		filters:    cfg.Filters,
		client:     &http.Client{},
		logger:     log,
	}
}

// Kind implements domain.Adapter.
func (a *Adapter) Kind() domain.Kind { return domain.KindKeyword }

// Name implements domain.Adapter.
func (a *Adapter) Name() string { return "solr" }

// selectResponse mirrors the subset of the Solr select response the adapter reads.
type selectResponse struct {
	Response struct {
		NumFound int              `json:"numFound"`
		Docs     []map[string]any `json:"docs"`
	} `json:"response"`
}

// Invoke implements domain.Adapter.
func (a *Adapter) Invoke(ctx context.Context, sq domain.SubQuery) (domain.Payload, error) {
	params := url.Values{}
	params.Set("q", queryString(sq.Terms))
	params.Set("fl", "*,score")
	params.Set("wt", "json")
	if sq.Limit > 0 {
		params.Set("rows", strconv.Itoa(sq.Limit))
	}
	for field, value := range a.filters {
		params.Add("fq", field+":"+escape(value))
	}
	for field, value := range sq.Filters {
		params.Add("fq", field+":"+escape(value))
	}

	endpoint := fmt.Sprintf("%s/%s/select?%s", a.baseURL, a.collection, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("solr: build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Deadline or cancellation, not a Solr failure.
			return domain.Payload{}, fmt.Errorf("solr select: %w", ctx.Err())
		}
		return domain.Payload{}, fmt.Errorf("solr select: %v: %w", err, domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= http.StatusInternalServerError {
			return domain.Payload{}, fmt.Errorf("solr select status %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
		}
		return domain.Payload{}, fmt.Errorf("solr select status %d: %w", resp.StatusCode, domain.ErrBackendInvalidResponse)
	}

	var sr selectResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return domain.Payload{}, fmt.Errorf("solr decode: %v: %w", err, domain.ErrBackendInvalidResponse)
	}

	items := make([]domain.Item, 0, len(sr.Response.Docs))
	for _, doc := range sr.Response.Docs {
		if item, ok := mapDoc(doc); ok {
			items = append(items, item)
		}
	}

	a.logger.Debug("Solr select completed",
		zap.Int("num_found", sr.Response.NumFound),
		zap.Int("returned", len(items)),
	)

	return domain.Payload{Items: items, Confidence: math.NaN()}, nil
}

// HealthCheck implements domain.HealthChecker via the Solr ping handler.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/%s/admin/ping", a.baseURL, a.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("solr: build ping request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("solr ping: %v: %w", err, domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solr ping status %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
	}
	return nil
}

// queryString builds the q parameter. Empty terms match everything so that
// filter-only sub-queries still work.
func queryString(terms string) string {
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return "*:*"
	}
	return escape(terms)
}

const luceneSpecials = `+-&|!(){}[]^"~*?:\/`

// escape backslash-escapes Lucene query syntax so user terms match literally.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(luceneSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// mapDoc converts one Solr document into an item. Documents without an id
// cannot merge across backends and are dropped.
func mapDoc(doc map[string]any) (domain.Item, bool) {
	id := stringField(doc, "id")
	if id == "" {
		return domain.Item{}, false
	}

	item := domain.Item{
		ID:      id,
		Score:   floatField(doc, "score"),
		Title:   stringField(doc, "title", "name"),
		Snippet: stringField(doc, "content", "description", "text"),
		Source:  stringField(doc, "source", "url"),
		Related: stringSlice(doc["related"]),
	}

	fields := make(map[string]string)
	for key, value := range doc {
		switch key {
		case "id", "score", "title", "name", "content", "description", "text", "source", "url", "related", "_version_":
			continue
		}
		if s := scalarString(value); s != "" {
			fields[key] = s
		}
	}
	if len(fields) > 0 {
		item.Fields = fields
	}
	return item, true
}

// stringField returns the first non-empty string among the named keys.
// Multi-valued Solr fields come back as arrays; the first element counts.
func stringField(doc map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := doc[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func floatField(doc map[string]any, key string) float64 {
	if f, ok := doc[key].(float64); ok {
		return f
	}
	return 0
}

func stringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// scalarString renders a document field value for the generic Fields map.
func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		return strings.Join(stringSlice(v), ", ")
	default:
		return ""
	}
}
