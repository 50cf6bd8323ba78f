package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/utils"
)

// Client talks to the external tabular record store over its HTTP API.
// All persistence in this system goes through here; there is no database.
type Client struct {
	baseURL    string
	apiKey     string
	tables     map[string]string
	httpClient *http.Client
	logger     *logrus.Logger
	maxRetries int
}

// Record is one row of a record-store table. Fields are keyed by the store's
// column names; use a FieldMap to translate logical names before lookup.
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime time.Time      `json:"createdTime"`
}

type recordPage struct {
	Records []*Record `json:"records"`
	Offset  string    `json:"offset"`
}

// ListQuery narrows a table listing. FilterFormula uses the store's formula
// syntax; Sort entries are "field" or "-field" for descending.
type ListQuery struct {
	FilterFormula string
	Sort          []string
	MaxRecords    int
}

func NewClient(cfg *config.RecordStoreConfig, logger *logrus.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("record store config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("RECORD_STORE_API_KEY is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		tables:     cfg.Tables,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		maxRetries: 3,
	}, nil
}

// tableID resolves a logical table name ("batches") to the store's table
// identifier. Unknown tables are a programming error, not user input.
func (c *Client) tableID(table string) (string, error) {
	id, ok := c.tables[table]
	if !ok || id == "" {
		return "", fmt.Errorf("unknown record store table %q", table)
	}
	return id, nil
}

func (c *Client) GetRecord(ctx context.Context, table, id string) (*Record, error) {
	tid, err := c.tableID(table)
	if err != nil {
		return nil, utils.NewAdapterError("get "+table, err)
	}
	var rec Record
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(tid)+"/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ListRecords(ctx context.Context, table string, q ListQuery) ([]*Record, error) {
	tid, err := c.tableID(table)
	if err != nil {
		return nil, utils.NewAdapterError("list "+table, err)
	}

	var out []*Record
	offset := ""
	for {
		values := url.Values{}
		if q.FilterFormula != "" {
			values.Set("filterByFormula", q.FilterFormula)
		}
		for i, s := range q.Sort {
			field, direction := s, "asc"
			if len(s) > 0 && s[0] == '-' {
				field, direction = s[1:], "desc"
			}
			values.Set(fmt.Sprintf("sort[%d][field]", i), field)
			values.Set(fmt.Sprintf("sort[%d][direction]", i), direction)
		}
		if q.MaxRecords > 0 {
			values.Set("maxRecords", strconv.Itoa(q.MaxRecords))
		}
		if offset != "" {
			values.Set("offset", offset)
		}

		endpoint := c.baseURL + "/" + url.PathEscape(tid)
		if encoded := values.Encode(); encoded != "" {
			endpoint += "?" + encoded
		}

		var page recordPage
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		if page.Offset == "" || (q.MaxRecords > 0 && len(out) >= q.MaxRecords) {
			break
		}
		offset = page.Offset
	}
	return out, nil
}

func (c *Client) CreateRecord(ctx context.Context, table string, fields map[string]any) (*Record, error) {
	tid, err := c.tableID(table)
	if err != nil {
		return nil, utils.NewAdapterError("create "+table, err)
	}
	body := map[string]any{"fields": fields}
	var rec Record
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/"+url.PathEscape(tid), body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRecord patches only the given fields; the store keeps the rest.
func (c *Client) UpdateRecord(ctx context.Context, table, id string, fields map[string]any) (*Record, error) {
	tid, err := c.tableID(table)
	if err != nil {
		return nil, utils.NewAdapterError("update "+table, err)
	}
	body := map[string]any{"fields": fields}
	var rec Record
	if err := c.do(ctx, http.MethodPatch, c.baseURL+"/"+url.PathEscape(tid)+"/"+url.PathEscape(id), body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, dest any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return utils.NewAdapterError("marshal request", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			sleep := time.Duration(1<<min(attempt, 4)) * 250 * time.Millisecond
			select {
			case <-ctx.Done():
				return utils.NewAdapterError(method+" "+endpoint, ctx.Err())
			case <-time.After(sleep):
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return utils.NewAdapterError(method+" "+endpoint, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return utils.ErrorRecordNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 200))
			continue
		case resp.StatusCode >= 400:
			// Client errors are not retryable.
			return utils.NewAdapterError(method+" "+endpoint,
				fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 200)))
		}

		if dest == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, dest); err != nil {
			return utils.NewAdapterError(method+" "+endpoint, fmt.Errorf("unexpected response shape: %w", err))
		}
		return nil
	}

	if c.logger != nil {
		config.LogError(c.logger, "recordstore/client.go", "do", method+" "+endpoint, nil, lastErr)
	}
	return utils.NewAdapterError(method+" "+endpoint, lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
