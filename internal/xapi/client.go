// Package xapi is the outbound client for the X v2 API. It implements
// publish.Publisher: create post and media upload, with retry/backoff on
// transient failures and rate-limit responses.
package xapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"xpost/internal/publish"
	"xpost/pkg/logx"
)

const (
	defaultBaseURL       = "https://api.x.com"
	defaultUploadBaseURL = "https://upload.twitter.com"
	defaultTimeout       = 30 * time.Second
	defaultMaxRetries    = 3
)

type Config struct {
	BaseURL       string
	UploadBaseURL string
	BearerToken   string
	Timeout       time.Duration
	MaxRetries    int
}

// APIError is a non-2xx response from the service, kept for the publish
// failure report.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api: status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	cfg  Config
	http *http.Client
	exec failsafe.Executor[*http.Response]
	log  logx.Logger
}

var _ publish.Publisher = (*Client)(nil)

func New(cfg Config, log logx.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = defaultUploadBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	// ReturnLastFailure keeps the final response when retries run out, so
	// do() can report the real status instead of an exceeded-retries wrapper.
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(250*time.Millisecond, 10*time.Second).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			return shouldRetry(resp, err)
		}).
		ReturnLastFailure().
		Build()

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		exec: failsafe.With(retry),
		log:  log,
	}
}

// shouldRetry covers network errors, server errors and rate limiting.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

type createPostBody struct {
	Text        string     `json:"text"`
	Reply       *replyBody `json:"reply,omitempty"`
	QuotePostID string     `json:"quote_tweet_id,omitempty"`
	Media       *mediaBody `json:"media,omitempty"`
}

type replyBody struct {
	InReplyToID string `json:"in_reply_to_tweet_id"`
}

type mediaBody struct {
	MediaIDs []string `json:"media_ids"`
}

type createPostResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) CreatePost(ctx context.Context, req publish.PostRequest) (string, error) {
	body := createPostBody{Text: req.Text, QuotePostID: req.QuoteID}
	if req.InReplyTo != "" {
		body.Reply = &replyBody{InReplyToID: req.InReplyTo}
	}
	if len(req.MediaIDs) > 0 {
		body.Media = &mediaBody{MediaIDs: req.MediaIDs}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/2/tweets", "application/json", payload)
	if err != nil {
		return "", err
	}

	var parsed createPostResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return "", fmt.Errorf("x api: decode create response: %w", err)
	}
	if parsed.Data.ID == "" {
		return "", fmt.Errorf("x api: create response missing post id")
	}
	c.log.Debug("post created", logx.String("post_id", parsed.Data.ID))
	return parsed.Data.ID, nil
}

type uploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// UploadMedia reads a local media file and uploads it, returning the
// service-side media id.
func (c *Client) UploadMedia(ctx context.Context, ref string) (string, error) {
	raw, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("read media %s: %w", ref, err)
	}

	form := url.Values{}
	form.Set("media_data", base64.StdEncoding.EncodeToString(raw))
	resp, err := c.do(ctx, http.MethodPost, c.cfg.UploadBaseURL+"/1.1/media/upload.json",
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return "", err
	}

	var parsed uploadResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return "", fmt.Errorf("x api: decode upload response: %w", err)
	}
	if parsed.MediaIDString == "" {
		return "", fmt.Errorf("x api: upload response missing media id")
	}
	c.log.Debug("media uploaded", logx.String("ref", ref), logx.String("media_id", parsed.MediaIDString))
	return parsed.MediaIDString, nil
}

// do sends one request through the retry executor and returns the response
// body on 2xx.
func (c *Client) do(ctx context.Context, method, rawURL, contentType string, payload []byte) ([]byte, error) {
	resp, err := c.exec.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if c.cfg.BearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		// Drain retriable responses so their connections can be reused,
		// keeping the bytes: the last attempt's body feeds the APIError.
		if shouldRetry(resp, nil) {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(b))
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("x api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("x api: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
