// Package client is a typed HTTP client for the fintrack expense API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"fintrack/internal/domain/expense"
	"fintrack/internal/domain/receipt"
	"fintrack/internal/shared/apperr"
)

const (
	defaultTimeout = 30 * time.Second
	expensesPath   = "/api/expenses"
	summaryPath    = "/api/expenses/summary"
	receiptsPath   = "/api/receipts"
)

// Client handles communication with the expense API
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a client for the API at baseURL. A zero timeout uses the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// WithBearerToken returns a copy of c that authenticates every request with token.
func (c *Client) WithBearerToken(token string) *Client {
	cp := *c
	cp.token = strings.TrimSpace(token)
	return &cp
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API error (status %d): %s - %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap exposes the response as an application error so callers can use
// apperr.KindOf on client failures.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return apperr.NotFound(e.Message)
	case e.StatusCode == http.StatusForbidden:
		return apperr.Access(e.Message, nil)
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return apperr.Validation(e.Message)
	default:
		return apperr.Dependency(e.Message, nil)
	}
}

// ExpenseInput is the body of a create request.
type ExpenseInput struct {
	OwnerID    string  `json:"ownerId"`
	Category   string  `json:"category"`
	Amount     string  `json:"amount"`
	Date       string  `json:"date,omitempty"`
	ReceiptRef *string `json:"receiptRef,omitempty"`
}

// UpdateInput names the fields to change. Unset fields are not sent.
type UpdateInput struct {
	Category   expense.Optional[string] `json:"category,omitzero"`
	Amount     expense.Optional[string] `json:"amount,omitzero"`
	Date       expense.Optional[string] `json:"date,omitzero"`
	ReceiptRef expense.Optional[string] `json:"receiptRef,omitzero"`
}

type updateRequest struct {
	OwnerID string `json:"ownerId"`
	UpdateInput
}

// File is a receipt to upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type createResponse struct {
	Expense *expense.Expense `json:"expense"`
}

type updateResponse struct {
	Data *expense.Expense `json:"data"`
}

type deleteResponse struct {
	DeletedItem *expense.Expense `json:"deletedItem"`
}

// ListExpenses fetches every expense of one owner.
func (c *Client) ListExpenses(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
	q := url.Values{"ownerId": {ownerID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+expensesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var expenses []*expense.Expense
	if err := c.do(req, &expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (c *Client) Summary(ctx context.Context, ownerID string) (expense.Summary, error) {
	q := url.Values{"ownerId": {ownerID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+summaryPath+"?"+q.Encode(), nil)
	if err != nil {
		return expense.Summary{}, fmt.Errorf("failed to create request: %w", err)
	}

	var summary expense.Summary
	if err := c.do(req, &summary); err != nil {
		return expense.Summary{}, err
	}
	return summary, nil
}

func (c *Client) CreateExpense(ctx context.Context, in ExpenseInput) (*expense.Expense, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, c.baseURL+expensesPath, in)
	if err != nil {
		return nil, err
	}

	var resp createResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Expense, nil
}

func (c *Client) UpdateExpense(ctx context.Context, ownerID, recordID string, in UpdateInput) (*expense.Expense, error) {
	target := c.baseURL + expensesPath + "/" + url.PathEscape(recordID)
	req, err := c.newJSONRequest(ctx, http.MethodPut, target, updateRequest{OwnerID: ownerID, UpdateInput: in})
	if err != nil {
		return nil, err
	}

	var resp updateResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) DeleteExpense(ctx context.Context, ownerID, recordID string) (*expense.Expense, error) {
	q := url.Values{"ownerId": {ownerID}}
	target := c.baseURL + expensesPath + "/" + url.PathEscape(recordID) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp deleteResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.DeletedItem, nil
}

// UploadReceipt streams f as multipart/form-data. progress, when non-nil, is
// called with the percentage of the file sent so far, ending at 100.
func (c *Client) UploadReceipt(ctx context.Context, ownerID string, f File, progress func(int)) (*receipt.Upload, error) {
	if f.Body == nil {
		return nil, apperr.Validation("receipt file is empty")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, ownerID, f, progress)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+receiptsPath, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var up receipt.Upload
	if err := c.do(req, &up); err != nil {
		return nil, err
	}
	return &up, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeUploadForm(mw *multipart.Writer, ownerID string, f File, progress func(int)) error {
	if err := mw.WriteField("ownerId", ownerID); err != nil {
		return err
	}
	if err := mw.WriteField("filename", f.Name); err != nil {
		return err
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	body := f.Body
	if progress != nil {
		body = &progressReader{r: f.Body, total: f.Size, report: progress, last: -1}
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("failed to send receipt: %w", err)
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

// progressReader reports whole-percent steps of total as it is read.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		if pct != p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}

func (c *Client) newJSONRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Dependency("failed to execute request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Dependency("failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			apiErr.Message = errResp.Message
			apiErr.Detail = errResp.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Dependency("failed to unmarshal response", err)
	}
	return nil
}
