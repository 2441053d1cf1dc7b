// Package social posts to the social network on a user's behalf.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"golang.org/x/time/rate"

	"github.com/pders01/fwrdpost/internal/config"
	"github.com/pders01/fwrdpost/internal/model"
)

const maxErrorBody = 64 << 10

// APIError is the problem document returned by the post endpoint.
type APIError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Status int    `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
}

type postRequest struct {
	Text  string     `json:"text"`
	Media *postMedia `json:"media,omitempty"`
}

type postMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type postResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type uploadResponse struct {
	MediaIDString    string `json:"media_id_string"`
	Size             int64  `json:"size"`
	ExpiresAfterSecs int64  `json:"expires_after_secs"`
}

type uploadErrors struct {
	Errors []struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"errors"`
}

// Client talks to the post and media upload endpoints. Requests from all job
// hosts share one rate limiter.
type Client struct {
	http      *http.Client
	apiURL    string
	uploadURL string
	limiter   *rate.Limiter
}

func NewClient(cfg config.SocialConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		apiURL:    cfg.APIURL,
		uploadURL: cfg.UploadURL,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Post publishes p and returns the id of the created post.
func (c *Client) Post(ctx context.Context, tok model.Token, p model.Post) (string, error) {
	body := postRequest{Text: p.Text}
	if len(p.MediaIDs) > 0 {
		body.Media = &postMedia{MediaIDs: p.MediaIDs}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", decodeAPIError(resp)
	}

	var out postResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding post response: %v", model.ErrUpstreamData, err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("%w: post response without id", model.ErrUpstreamData)
	}
	return out.Data.ID, nil
}

// Upload sends media bytes and returns the media handle to attach to a post.
// owner is listed as an additional owner of the upload.
func (c *Client) Upload(ctx context.Context, tok model.Token, owner, filename, contentType string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("creating media part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing media part: %w", err)
	}
	if err := w.WriteField("additional_owners", owner); err != nil {
		return "", fmt.Errorf("writing owner field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var ue uploadErrors
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, &ue) == nil && len(ue.Errors) > 0 {
			return "", fmt.Errorf("%w: upload: %s (code %d)", model.ErrUpstreamRejected, ue.Errors[0].Message, ue.Errors[0].Code)
		}
		return "", fmt.Errorf("%w: upload returned HTTP %d", model.ErrUpstreamRejected, resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding upload response: %v", model.ErrUpstreamData, err)
	}
	if out.MediaIDString == "" {
		return "", fmt.Errorf("%w: upload response without media id", model.ErrUpstreamData)
	}
	return out.MediaIDString, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", model.ErrNetwork, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", model.ErrNetwork, req.Method, req.URL.Host, err)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var apiErr APIError
	if err := json.Unmarshal(raw, &apiErr); err != nil || (apiErr.Title == "" && apiErr.Detail == "") {
		return fmt.Errorf("%w: HTTP %d", model.ErrUpstreamRejected, resp.StatusCode)
	}
	if apiErr.Status == 0 {
		apiErr.Status = resp.StatusCode
	}
	return fmt.Errorf("%w: %w", model.ErrUpstreamRejected, &apiErr)
}
