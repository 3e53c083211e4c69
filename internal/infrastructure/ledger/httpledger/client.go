// Package httpledger talks to a ledger gateway over JSON/HTTP.
//
//	POST {base}/v1/events                    {"kind","subject_id","data"} -> receipt
//	GET  {base}/v1/events/{kind}/{subject}   -> record, 404 when absent
package httpledger

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/civic-records/internal/core/domain"
	"github.com/kirillkom/civic-records/internal/infrastructure/resilience"
)

type Options struct {
	Token      string
	HTTPClient *http.Client
	Executor   *resilience.Executor
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(options.Token),
		httpClient: httpClient,
		executor:   options.Executor,
	}
}

type recordRequest struct {
	Kind      string         `json:"kind"`
	SubjectID string         `json:"subject_id"`
	Data      map[string]any `json:"data"`
}

func (c *Client) RecordEvent(ctx context.Context, kind, subjectID string, data map[string]any) (domain.LedgerReceipt, error) {
	var receipt domain.LedgerReceipt
	err := c.execute(ctx, "ledger.record", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, "/v1/events", recordRequest{Kind: kind, SubjectID: subjectID, Data: data}, &receipt, "record")
	})
	if err != nil {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerUnavailable, "record ledger event", err)
	}
	if receipt.TxID == "" {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerUnavailable, "record ledger event", fmt.Errorf("gateway returned no transaction id"))
	}
	return receipt, nil
}

func (c *Client) QueryEvent(ctx context.Context, kind, subjectID string) (domain.LedgerRecord, error) {
	var record domain.LedgerRecord
	path := "/v1/events/" + url.PathEscape(kind) + "/" + url.PathEscape(subjectID)
	err := c.execute(ctx, "ledger.query", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, path, nil, &record, "query")
	})
	if err != nil {
		if isNotFound(err) {
			return domain.LedgerRecord{}, domain.WrapError(domain.ErrNotFound, "query ledger event", err)
		}
		return domain.LedgerRecord{}, domain.WrapError(domain.ErrLedgerUnavailable, "query ledger event", err)
	}
	return record, nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, operation, call, classifyLedgerError)
}
