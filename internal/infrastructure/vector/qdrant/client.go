// Package qdrant is the remote vector index backend. Dense and sparse
// vectors live side by side in one collection; tenant isolation is a
// mandatory owner_id filter on every search and delete.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "keyword"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Index(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant index",
				fmt.Errorf("chunk %d of document %s has no embedding", chunks[i].Index, doc.ID))
		}
	}

	if err := c.ensureCollection(ctx, len(chunks[0].Embedding)); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i := range chunks {
		ch := &chunks[i]
		points = append(points, point{
			ID: ch.ID,
			Vector: map[string]any{
				denseVectorName:  ch.Embedding,
				sparseVectorName: encodeSparseChunk(ch.Text, ch.Section),
			},
			Payload: map[string]any{
				"chunk_id":    ch.ID,
				"document_id": ch.DocumentID,
				"owner_id":    ch.OwnerID,
				"chunk_index": ch.Index,
				"start":       ch.Start,
				"end":         ch.End,
				"text":        ch.Text,
				"section":     ch.Section,
				"page":        ch.Page,
				"uploaded_at": doc.UploadedAt.UTC().Format(time.RFC3339Nano),
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil)
}

// Remove deletes every point of the document, scoped to the owner so a
// stale document id can never reach into another tenant.
func (c *Client) Remove(ctx context.Context, ownerID, documentID string) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	body := map[string]any{
		"filter": mustFilter(
			matchCondition("owner_id", ownerID),
			matchCondition("document_id", documentID),
		),
	}
	err := c.do(ctx, http.MethodPost, url, body, nil)
	if isCollectionMissing(err) {
		return nil
	}
	return err
}

func (c *Client) SearchSemantic(ctx context.Context, ownerID string, queryVector []float32, limit int) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": queryVector,
		},
		"limit":        limit,
		"with_payload": true,
		"filter":       mustFilter(matchCondition("owner_id", ownerID)),
	}
	return c.search(ctx, body)
}

func (c *Client) SearchKeyword(ctx context.Context, ownerID, queryText string, limit int) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector": map[string]any{
			"name":   sparseVectorName,
			"vector": sparse,
		},
		"limit":        limit,
		"with_payload": true,
		"filter":       mustFilter(matchCondition("owner_id", ownerID)),
	}
	return c.search(ctx, body)
}

func (c *Client) search(ctx context.Context, body map[string]any) ([]domain.ScoredChunk, error) {
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, url, body, &searchResp); err != nil {
		if isCollectionMissing(err) {
			return nil, domain.WrapError(domain.ErrIndexUnavailable, "qdrant search", err)
		}
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:         payloadString(r.Payload, "chunk_id"),
				DocumentID: payloadString(r.Payload, "document_id"),
				OwnerID:    payloadString(r.Payload, "owner_id"),
				Index:      payloadInt(r.Payload, "chunk_index"),
				Start:      payloadInt(r.Payload, "start"),
				End:        payloadInt(r.Payload, "end"),
				Text:       payloadString(r.Payload, "text"),
				Section:    payloadString(r.Payload, "section"),
				Page:       payloadInt(r.Payload, "page"),
			},
			Score:      r.Score,
			UploadedAt: payloadTime(r.Payload, "uploaded_at"),
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.do(ctx, http.MethodPut, url, body, nil)
	if err != nil {
		// 409 means the collection already exists.
		var status *statusError
		if asStatusError(err, &status) && status.code == http.StatusConflict {
			c.markCollectionEnsured(vectorSize)
			return nil
		}
		return err
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) do(ctx context.Context, method, url string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal qdrant request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			code:   resp.StatusCode,
			status: resp.Status,
			detail: strings.TrimSpace(string(detail)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}

func matchCondition(key, value string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func mustFilter(conditions ...map[string]any) map[string]any {
	return map[string]any{"must": conditions}
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadInt(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}

func payloadTime(payload map[string]any, key string) time.Time {
	raw := payloadString(payload, key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
