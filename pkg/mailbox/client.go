package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/metrics"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/retry"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "https://gmail.googleapis.com"
	apiPath        = "/gmail/v1/users/me"
	providerName   = "gmail"
	listPageSize   = 100
)

// TokenSource supplies access tokens for a user's mailbox
type TokenSource interface {
	GetValidToken(ctx context.Context, userId string) (*types.OAuthToken, error)
	ForceRefresh(ctx context.Context, userId, staleAccessToken string) (*types.OAuthToken, error)
}

// Client is a typed wrapper over the Gmail REST API. Every call resolves a
// token, waits on the per-user rate limiter, and runs under the retry policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *RateLimiter
	retry      retry.Policy
}

func NewClient(cfg types.MailboxConfig, tokens TokenSource, policy retry.Policy) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    baseURL + apiPath,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		limiter:    NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		retry:      policy,
	}
}

// ListMessages returns up to max message ids matching query, newest first
func (c *Client) ListMessages(ctx context.Context, userId, query string, max int) ([]string, error) {
	ids := make([]string, 0, max)
	pageToken := ""

	for len(ids) < max {
		params := url.Values{}
		params.Set("maxResults", strconv.Itoa(min(max-len(ids), listPageSize)))
		if query != "" {
			params.Set("q", query)
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page struct {
			Messages []struct {
				Id string `json:"id"`
			} `json:"messages"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := c.do(ctx, userId, "list", http.MethodGet, "/messages?"+params.Encode(), nil, &page); err != nil {
			return nil, err
		}

		for _, m := range page.Messages {
			ids = append(ids, m.Id)
		}
		if page.NextPageToken == "" || len(page.Messages) == 0 {
			break
		}
		pageToken = page.NextPageToken
	}

	if len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

// GetMessage fetches and parses a single message
func (c *Client) GetMessage(ctx context.Context, userId, messageId string) (*types.Item, error) {
	var msg gmailMessage
	path := "/messages/" + url.PathEscape(messageId) + "?format=full"
	if err := c.do(ctx, userId, "get", http.MethodGet, path, nil, &msg); err != nil {
		return nil, err
	}
	return msg.toItem(), nil
}

func (c *Client) ListLabels(ctx context.Context, userId string) ([]Label, error) {
	var result struct {
		Labels []Label `json:"labels"`
	}
	if err := c.do(ctx, userId, "labels.list", http.MethodGet, "/labels", nil, &result); err != nil {
		return nil, err
	}
	return result.Labels, nil
}

// CreateLabel creates a user label. A name that already exists fails with a
// permanent ProviderError carrying status 409.
func (c *Client) CreateLabel(ctx context.Context, userId, name string) (*Label, error) {
	body := map[string]string{
		"name":                  name,
		"labelListVisibility":   "labelShow",
		"messageListVisibility": "show",
	}

	var label Label
	if err := c.do(ctx, userId, "labels.create", http.MethodPost, "/labels", body, &label); err != nil {
		return nil, err
	}
	return &label, nil
}

// ModifyLabels adds and removes label ids on a message and returns the resulting label set
func (c *Client) ModifyLabels(ctx context.Context, userId, messageId string, add, remove []string) ([]string, error) {
	body := map[string][]string{
		"addLabelIds":    nonNil(add),
		"removeLabelIds": nonNil(remove),
	}

	var msg struct {
		LabelIds []string `json:"labelIds"`
	}
	path := "/messages/" + url.PathEscape(messageId) + "/modify"
	if err := c.do(ctx, userId, "modify", http.MethodPost, path, body, &msg); err != nil {
		return nil, err
	}
	return msg.LabelIds, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (c *Client) do(ctx context.Context, userId, op, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
	}

	return c.retry.Do(ctx, func(ctx context.Context) error {
		return c.attempt(ctx, userId, op, method, path, payload, out)
	})
}

// attempt performs one logical call. A 401 gets exactly one forced token
// refresh and resend; a second 401 is permanent.
func (c *Client) attempt(ctx context.Context, userId, op, method, path string, payload []byte, out any) error {
	tok, err := c.tokens.GetValidToken(ctx, userId)
	if err != nil {
		return err
	}

	status, respBody, err := c.send(ctx, userId, op, method, path, tok.AccessToken, payload)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		log.Debug().Str("user_id", userId).Str("op", op).Msg("mailbox rejected token, forcing refresh")

		tok, err = c.tokens.ForceRefresh(ctx, userId, tok.AccessToken)
		if err != nil {
			return err
		}
		status, respBody, err = c.send(ctx, userId, op, method, path, tok.AccessToken, payload)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return &types.ProviderError{
				Provider: providerName, Op: op, Kind: types.KindPermanent,
				StatusCode: status, Message: errorMessage(respBody),
			}
		}
	}

	if status < 200 || status >= 300 {
		return &types.ProviderError{
			Provider:   providerName,
			Op:         op,
			Kind:       kindForStatus(status),
			StatusCode: status,
			Message:    errorMessage(respBody),
		}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &types.ProviderError{Provider: providerName, Op: op, Kind: types.KindPermanent, Message: "malformed response", Err: err}
	}
	return nil
}

func (c *Client) send(ctx context.Context, userId, op, method, path, accessToken string, payload []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx, userId); err != nil {
		return 0, nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.MailboxRequests.WithLabelValues(op, "error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, &types.ProviderError{Provider: providerName, Op: op, Kind: types.KindTransient, Err: err}
	}
	defer resp.Body.Close()

	metrics.MailboxRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &types.ProviderError{Provider: providerName, Op: op, Kind: types.KindTransient, Err: err}
	}
	return resp.StatusCode, body, nil
}

func kindForStatus(status int) types.ErrorKind {
	if status == http.StatusTooManyRequests || status >= 500 {
		return types.KindTransient
	}
	return types.KindPermanent
}

func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return strings.TrimSpace(string(body))
}

// IsNotFound reports whether err is a provider 404
func IsNotFound(err error) bool {
	return types.HasStatus(err, http.StatusNotFound)
}

// IsConflict reports whether err is a provider 409
func IsConflict(err error) bool {
	var pe *types.ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusConflict
}
