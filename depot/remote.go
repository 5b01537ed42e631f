// CLAUDE:SUMMARY Remote backend: HTTP client against the REST storage API with bearer auth and structured error decode.
package depot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is the structured error shape of the remote store. Its fields
// feed relay diagnostics through the StatusCoder / field accessors.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("depot: remote status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("depot: remote status %d: %s", e.Status, e.Message)
}

// HTTPStatus implements relay's status lookup.
func (e *APIError) HTTPStatus() int { return e.Status }

// ErrorFields implements relay's structured-field lookup.
func (e *APIError) ErrorFields() (code, details, hint string) {
	return e.Code, e.Details, e.Hint
}

// Remote is an ObjectStore + RowStore over a REST storage API:
//
//	PUT  /objects/<path>           body = raw bytes
//	GET  /objects?prefix=          → [{path, size, updated_at}]
//	POST /sign                     {path, ttl_seconds} → {url}
//	POST /rows/<table>             row JSON → {id}
//	POST /rows/<table>/query       query JSON → [rows]
//	POST /rows/<table>/delete      {ids}
type Remote struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewRemote builds a client with a bounded per-request timeout.
func NewRemote(baseURL, token string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Remote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		r.BaseURL+"/objects/"+urlPath(path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("depot: build upload: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return r.do(req, nil)
}

func (r *Remote) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.BaseURL+"/objects?prefix="+url.QueryEscape(prefix), nil)
	if err != nil {
		return nil, fmt.Errorf("depot: build list: %w", err)
	}
	var out []ObjectInfo
	if err := r.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Remote) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"path":        path,
		"ttl_seconds": int(ttl.Seconds()),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.BaseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("depot: build sign: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var resp struct {
		URL string `json:"url"`
	}
	if err := r.do(req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (r *Remote) Insert(ctx context.Context, table string, row map[string]any) (string, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("depot: marshal row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.BaseURL+"/rows/"+url.PathEscape(table), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("depot: build insert: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var resp struct {
		ID string `json:"id"`
	}
	if err := r.do(req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (r *Remote) Query(ctx context.Context, table string, q Query) ([]map[string]any, error) {
	body, _ := json.Marshal(map[string]any{
		"filter":   q.Filter,
		"order_by": q.OrderBy,
		"desc":     q.Desc,
		"limit":    q.Limit,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.BaseURL+"/rows/"+url.PathEscape(table)+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("depot: build query: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var out []map[string]any
	if err := r.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Remote) Delete(ctx context.Context, table string, ids []string) error {
	body, _ := json.Marshal(map[string]any{"ids": ids})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.BaseURL+"/rows/"+url.PathEscape(table)+"/delete", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("depot: build delete: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, nil)
}

// do sends the request with auth, decodes errors into *APIError, and
// optionally decodes the success body into out.
func (r *Remote) do(req *http.Request, out any) error {
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("depot: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("depot: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// decodeAPIError reads a bounded amount of the error body. JSON bodies
// fill the structured fields; anything else (HTML error pages included)
// lands in Message for relay to collapse.
func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}

// urlPath escapes each segment of an object path while keeping the
// separators.
func urlPath(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
