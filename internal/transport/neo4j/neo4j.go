// Package neo4j implements the vector/graph retrieval backend over the
// Neo4j transactional HTTP API. Hits come from a fulltext index; each hit
// carries the IDs of its direct graph neighbors so fusion can surface
// related entities.
package neo4j

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
)

// Config holds Neo4j connection settings.
type Config struct {
	URL          string // base URL, e.g. http://localhost:7474
	Database     string // database name, e.g. neo4j
	Username     string
	Password     string
	Index        string // fulltext index queried via db.index.fulltext.queryNodes
	RelatedLimit int    // neighbor IDs collected per hit
	Logger       *zap.Logger
}

// Adapter is the vector/graph backend.
type Adapter struct {
	baseURL      string
	database     string
	username     string
	password     string
	index        string
	relatedLimit int
	client       *http.Client
	logger       *zap.Logger
}

const defaultRelatedLimit = 5

// New creates a Neo4j vector/graph adapter.
func New(cfg *Config) *Adapter {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	related := cfg.RelatedLimit
	if related <= 0 {
		related = defaultRelatedLimit
	}
	return &Adapter{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		database:     cfg.Database,
		username:     cfg.Username,
		password:     cfg.Password,
		index:        cfg.Index,
		relatedLimit: related,
		client:       &http.Client{},
		logger:       log,
	}
}

// Kind implements domain.Adapter.
func (a *Adapter) Kind() domain.Kind { return domain.KindVectorGraph }

// Name implements domain.Adapter.
func (a *Adapter) Name() string { return "neo4j" }

// searchStatement scores nodes through the fulltext index, then collects a
// bounded set of direct-neighbor IDs per hit. Column order is fixed and
// parsed positionally.
const searchStatement = `CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score ` +
	`WITH node, score ORDER BY score DESC LIMIT $limit ` +
	`OPTIONAL MATCH (node)--(neighbor) ` +
	`WITH node, score, collect(DISTINCT neighbor.id)[..$related] AS related ` +
	`RETURN node.id AS id, node.title AS title, coalesce(node.summary, node.text) AS snippet, ` +
	`node.source AS source, score, related`

type txRequest struct {
	Statements []txStatement `json:"statements"`
}

type txStatement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type txResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []json.RawMessage `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []txError `json:"errors"`
}

type txError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Invoke implements domain.Adapter.
func (a *Adapter) Invoke(ctx context.Context, sq domain.SubQuery) (domain.Payload, error) {
	text := sq.Text
	if strings.TrimSpace(text) == "" {
		text = sq.Terms
	}
	limit := sq.Limit
	if limit <= 0 {
		limit = 10
	}

	tx, err := a.commit(ctx, txStatement{
		Statement: searchStatement,
		Parameters: map[string]any{
			"index":   a.index,
			"query":   escape(text),
			"limit":   limit,
			"related": a.relatedLimit,
		},
	})
	if err != nil {
		return domain.Payload{}, err
	}

	var items []domain.Item
	if len(tx.Results) > 0 {
		items = make([]domain.Item, 0, len(tx.Results[0].Data))
		for _, datum := range tx.Results[0].Data {
			if item, ok := mapRow(datum.Row); ok {
				items = append(items, item)
			}
		}
	}

	a.logger.Debug("Neo4j fulltext query completed",
		zap.Int("returned", len(items)),
	)

	return domain.Payload{Items: items, Confidence: math.NaN()}, nil
}

// HealthCheck implements domain.HealthChecker with a trivial statement.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	_, err := a.commit(ctx, txStatement{Statement: "RETURN 1"})
	return err
}

// commit runs one statement through the auto-commit transaction endpoint.
func (a *Adapter) commit(ctx context.Context, stmt txStatement) (*txResponse, error) {
	body, err := json.Marshal(txRequest{Statements: []txStatement{stmt}})
	if err != nil {
		return nil, fmt.Errorf("neo4j: marshal statement: %w", err)
	}

	endpoint := fmt.Sprintf("%s/db/%s/tx/commit", a.baseURL, a.database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("neo4j: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("neo4j commit: %w", ctx.Err())
		}
		return nil, fmt.Errorf("neo4j commit: %v: %w", err, domain.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("neo4j auth rejected, status %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("neo4j commit status %d: %w", resp.StatusCode, domain.ErrBackendUnavailable)
		}
		return nil, fmt.Errorf("neo4j commit status %d: %w", resp.StatusCode, domain.ErrBackendInvalidResponse)
	}

	var tx txResponse
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("neo4j decode: %v: %w", err, domain.ErrBackendInvalidResponse)
	}

	// The tx endpoint reports statement failures in-band with status 200.
	if len(tx.Errors) > 0 {
		first := tx.Errors[0]
		if strings.HasPrefix(first.Code, "Neo.TransientError") {
			return nil, fmt.Errorf("neo4j error %s: %s: %w", first.Code, first.Message, domain.ErrBackendUnavailable)
		}
		return nil, fmt.Errorf("neo4j error %s: %s: %w", first.Code, first.Message, domain.ErrBackendInvalidResponse)
	}
	return &tx, nil
}

// mapRow parses one result row in searchStatement column order:
// id, title, snippet, source, score, related.
func mapRow(row []json.RawMessage) (domain.Item, bool) {
	if len(row) < 6 {
		return domain.Item{}, false
	}
	id := cellString(row[0])
	if id == "" {
		return domain.Item{}, false
	}
	return domain.Item{
		ID:      id,
		Score:   cellFloat(row[4]),
		Title:   cellString(row[1]),
		Snippet: cellString(row[2]),
		Source:  cellString(row[3]),
		Related: cellStrings(row[5]),
	}, true
}

func cellString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func cellFloat(raw json.RawMessage) float64 {
	var f float64
	if len(raw) == 0 || json.Unmarshal(raw, &f) != nil {
		return 0
	}
	return f
}

func cellStrings(raw json.RawMessage) []string {
	var values []string
	if len(raw) == 0 || json.Unmarshal(raw, &values) != nil {
		return nil
	}
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

const luceneSpecials = `+-&|!(){}[]^"~*?:\/`

// escape backslash-escapes Lucene syntax; queryNodes parses its query string
// with the Lucene parser, and raw user text must never break it.
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
