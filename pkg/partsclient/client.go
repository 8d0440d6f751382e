// Package partsclient is a Go client for the parts tracker API. Binary
// artifacts (models, source files) are served through a blobcache so
// repeated views do not hit the server again.
package partsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/entities"
	"parts-tracker/pkg/blobcache"
	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/partquery"
	"parts-tracker/pkg/types"
)

const apiKeyHeader = "X-API-Key"

type Config struct {
	// BaseURL includes the API prefix, e.g. http://localhost:5000/api.
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// RetryBackoff is the first pause between GET retries; it doubles each time.
	RetryBackoff time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      *blobcache.Cache
	logger     *zap.Logger
}

// New builds a client. cache may be nil, in which case artifacts are
// fetched into a private cache with default limits.
func New(cfg Config, cache *blobcache.Cache, logger *zap.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("partsclient: base url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		var err error
		if cache, err = blobcache.New(blobcache.WithLogger(logger)); err != nil {
			return nil, err
		}
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		logger:     logger.Named("partsclient"),
	}, nil
}

// Close releases every cached artifact.
func (c *Client) Close() error {
	return c.cache.Close()
}

// APIError is a non-2xx reply. It unwraps to the matching apperrors
// sentinel where the status code identifies one.
type APIError struct {
	StatusCode int
	Message    string
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("parts api %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return apperrors.ErrValidation
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case http.StatusForbidden:
		return apperrors.ErrForbidden
	case http.StatusNotFound:
		return apperrors.ErrNotFound
	}
	return nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Body    json.RawMessage `json:"body"`
	Message string          `json:"message"`
}

type listBody struct {
	List       []dto.PartResponseDTO `json:"list"`
	Pagination types.Pagination      `json:"pagination"`
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

// send performs req. GETs are retried on transport failures only; a reply
// from the server, whatever its status, is never retried, and neither is
// any mutating call.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	attempts := 1
	if req.method == http.MethodGet {
		attempts += c.cfg.MaxRetries
	}
	backoff := c.cfg.RetryBackoff

	for attempt := 1; ; attempt++ {
		resp, err := c.sendOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt >= attempts || !isNetworkError(err) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("request retrying",
			zap.String("path", req.path),
			zap.Int("attempt", attempt),
			zap.Duration("sleep", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *Client) sendOnce(ctx context.Context, req request) (*http.Response, error) {
	u := c.cfg.BaseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(apiKeyHeader, c.cfg.APIKey)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var env envelope
	if json.Unmarshal(raw, &env) == nil {
		if env.Message != "" {
			apiErr.Message = env.Message
		}
		apiErr.Body = env.Body
	}
	return apiErr
}

// call sends req and decodes the envelope body into out (when non-nil).
func (c *Client) call(ctx context.Context, req request, out interface{}) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.method, req.path, err)
	}
	if out == nil || len(env.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Body, out); err != nil {
		return fmt.Errorf("decode %s %s body: %w", req.method, req.path, err)
	}
	return nil
}

func jsonRequest(method, path string, payload interface{}) (request, error) {
	req := request{method: method, path: path}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return req, err
		}
		req.body = data
		req.contentType = "application/json"
	}
	return req, nil
}

func partPath(id int64, suffix string) string {
	return "/parts/" + strconv.FormatInt(id, 10) + suffix
}

// ListParts runs q on the server.
func (c *Client) ListParts(ctx context.Context, q partquery.Query) ([]dto.PartResponseDTO, types.Pagination, error) {
	f := q.Filter()
	values := url.Values{}
	set := func(k, v string) {
		if v != "" {
			values.Set(k, v)
		}
	}
	set("category", f.Category)
	set("search", f.Search)
	set("sort_by", f.SortBy)
	set("sort_order", f.SortOrder)
	if f.Limit > 0 {
		values.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		values.Set("offset", strconv.Itoa(f.Offset))
	}

	var body listBody
	if err := c.call(ctx, request{method: http.MethodGet, path: "/parts", query: values}, &body); err != nil {
		return nil, types.Pagination{}, err
	}
	return body.List, body.Pagination, nil
}

func (c *Client) GetPart(ctx context.Context, id int64) (*dto.PartResponseDTO, error) {
	var part dto.PartResponseDTO
	if err := c.call(ctx, request{method: http.MethodGet, path: partPath(id, "")}, &part); err != nil {
		return nil, err
	}
	return &part, nil
}

func (c *Client) CreatePart(ctx context.Context, payload dto.CreatePartDTO) (*dto.PartResponseDTO, error) {
	return c.mutate(ctx, http.MethodPost, "/parts", payload)
}

func (c *Client) UpdatePart(ctx context.Context, id int64, payload dto.UpdatePartDTO) (*dto.PartResponseDTO, error) {
	return c.mutate(ctx, http.MethodPut, partPath(id, ""), payload)
}

// DeletePart removes the part and drops its cached artifacts.
func (c *Client) DeletePart(ctx context.Context, id int64) error {
	defer c.cache.InvalidatePart(id)
	return c.call(ctx, request{method: http.MethodDelete, path: partPath(id, "")}, nil)
}

func (c *Client) Approve(ctx context.Context, id int64, category entities.Category) (*dto.PartResponseDTO, error) {
	return c.mutate(ctx, http.MethodPost, partPath(id, "/approve"), dto.ApprovePartDTO{Category: string(category)})
}

func (c *Client) Assign(ctx context.Context, id int64, user string, alreadyStarted bool) (*dto.PartResponseDTO, error) {
	return c.mutate(ctx, http.MethodPost, partPath(id, "/assign"), dto.AssignPartDTO{Assigned: user, AlreadyStarted: alreadyStarted})
}

func (c *Client) Unclaim(ctx context.Context, id int64) (*dto.PartResponseDTO, error) {
	return c.mutate(ctx, http.MethodPost, partPath(id, "/unclaim"), nil)
}

func (c *Client) Start(ctx context.Context, id int64) (*dto.PartResponseDTO, error) {
	return c.mutate(ctx, http.MethodPost, partPath(id, "/start"), nil)
}

func (c *Client) Complete(ctx context.Context, id int64, completedAmount *int) (*dto.PartResponseDTO, error) {
	return c.mutate(ctx, http.MethodPost, partPath(id, "/complete"), dto.CompletePartDTO{CompletedAmount: completedAmount})
}

func (c *Client) Revert(ctx context.Context, id int64, category entities.Category) (*dto.PartResponseDTO, error) {
	return c.mutate(ctx, http.MethodPost, partPath(id, "/revert"), dto.RevertPartDTO{Category: string(category)})
}

func (c *Client) mutate(ctx context.Context, method, path string, payload interface{}) (*dto.PartResponseDTO, error) {
	req, err := jsonRequest(method, path, payload)
	if err != nil {
		return nil, err
	}
	var part dto.PartResponseDTO
	if err := c.call(ctx, req, &part); err != nil {
		return nil, err
	}
	return &part, nil
}

func (c *Client) Stats(ctx context.Context) (*entities.PartStats, error) {
	var stats entities.PartStats
	if err := c.call(ctx, request{method: http.MethodGet, path: "/parts/stats"}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) Leaderboard(ctx context.Context) ([]entities.LeaderboardEntry, error) {
	var entries []entities.LeaderboardEntry
	if err := c.call(ctx, request{method: http.MethodGet, path: "/parts/leaderboard"}, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CheckAuth reports whether the configured key is accepted. The server
// may hold the reply back to rate limit repeated checks.
func (c *Client) CheckAuth(ctx context.Context) error {
	return c.call(ctx, request{method: http.MethodGet, path: "/parts/auth/check"}, nil)
}

func (c *Client) LinkToken(ctx context.Context) (*dto.LinkTokenDTO, error) {
	var token dto.LinkTokenDTO
	if err := c.call(ctx, request{method: http.MethodPost, path: "/parts/auth/token"}, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// Wipe deletes every part. wipeKey is the secondary credential.
func (c *Client) Wipe(ctx context.Context, wipeKey string) (int64, error) {
	req, err := jsonRequest(http.MethodPost, "/parts/wipe", dto.WipePartsDTO{Confirmation: wipeKey})
	if err != nil {
		return 0, err
	}
	var res dto.WipeResultDTO
	if err := c.call(ctx, req, &res); err != nil {
		return 0, err
	}
	c.cache.InvalidatePrefix("")
	return res.Deleted, nil
}

// Upload attaches a source file to part id. Cached artifacts of the part
// are dropped since the model will be regenerated.
func (c *Client) Upload(ctx context.Context, id int64, filename string, content io.Reader) (*dto.PartResponseDTO, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, content); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	defer c.cache.InvalidatePart(id)
	var part dto.PartResponseDTO
	req := request{method: http.MethodPost, path: partPath(id, "/upload"), body: buf.Bytes(), contentType: mw.FormDataContentType()}
	if err := c.call(ctx, req, &part); err != nil {
		return nil, err
	}
	return &part, nil
}

func (c *Client) RetryConversion(ctx context.Context, id int64) (*dto.PartResponseDTO, error) {
	defer c.cache.InvalidatePart(id)
	return c.mutate(ctx, http.MethodPost, partPath(id, "/convert"), nil)
}

// Model returns a local copy of the part's converted model. A model that
// is still converting fails with apperrors.ErrNotFound and is not cached.
func (c *Client) Model(ctx context.Context, id int64) (*blobcache.Handle, error) {
	return c.cache.Get(ctx, blobcache.ModelKey(id), c.fetcher(partPath(id, "/model")))
}

// File returns a local copy of the part's uploaded source file.
func (c *Client) File(ctx context.Context, id int64) (*blobcache.Handle, error) {
	return c.cache.Get(ctx, blobcache.FileKey(id), c.fetcher(partPath(id, "/file")))
}

func (c *Client) fetcher(path string) blobcache.Fetcher {
	return func(ctx context.Context) (io.ReadCloser, error) {
		resp, err := c.send(ctx, request{method: http.MethodGet, path: path})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
}

// Export writes the spreadsheet export to w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	resp, err := c.send(ctx, request{method: http.MethodGet, path: "/parts/export"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}
