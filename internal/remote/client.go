package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/profedit/internal/profile"
)

// ErrUnauthorized is returned when the store rejects the credential or no
// credential is available.
var ErrUnauthorized = errors.New("Authentication required.")

// APIError is a non-authorization failure reported by the store.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("store returned %d", e.Status)
	}
	return e.Message
}

// Unwrap maps credential rejections onto ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusUnprocessableEntity {
		return ErrUnauthorized
	}
	return nil
}

// Credentials supplies the bearer credential for each request.
type Credentials interface {
	Credential() (string, error)
}

// Client talks to the remote profile store.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
}

// New creates a Client for the store at baseURL. timeout bounds every
// request; zero means no client-side timeout.
func New(baseURL string, creds Credentials, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchResult is the envelope returned by GET /api/profile.
type FetchResult struct {
	User    profile.Identity `json:"user"`
	Profile profile.Wire     `json:"profile"`
}

type saveResponse struct {
	Profile profile.Wire `json:"profile"`
}

type imageResponse struct {
	ImageURL string `json:"image_url"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// LoginRequest is the body for POST /api/login.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// LoginResult carries the issued credential and the signed-in identity.
type LoginResult struct {
	Token string           `json:"token"`
	User  profile.Identity `json:"user"`
}

// FetchProfile retrieves the caller's identity and profile.
func (c *Client) FetchProfile(ctx context.Context) (FetchResult, error) {
	var out FetchResult
	resp, err := c.do(ctx, http.MethodGet, "/api/profile", nil, "", true)
	if err != nil {
		return out, err
	}
	if err := decodeJSON(resp, &out); err != nil {
		return FetchResult{}, fmt.Errorf("fetching profile: %w", err)
	}
	return out, nil
}

// SaveProfile sends u and returns the profile as the store now holds it.
func (c *Client) SaveProfile(ctx context.Context, u profile.WireUpdate) (profile.Wire, error) {
	body, err := json.Marshal(u)
	if err != nil {
		return profile.Wire{}, fmt.Errorf("marshalling request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPut, "/api/profile", bytes.NewReader(body), "application/json", true)
	if err != nil {
		return profile.Wire{}, err
	}
	var out saveResponse
	if err := decodeJSON(resp, &out); err != nil {
		return profile.Wire{}, fmt.Errorf("saving profile: %w", err)
	}
	return out.Profile, nil
}

// UploadAvatar posts the image as multipart field "image" and returns the
// store-relative path of the stored image. progress, when non-nil, is called
// with bytes of the request body handed to the transport.
func (c *Client) UploadAvatar(ctx context.Context, name string, r io.Reader, size int64, progress func(sent, total int64)) (string, error) {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size) + 512)
	}
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filepath.Base(name))
	if err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}

	body := &progressReader{r: bytes.NewReader(buf.Bytes()), total: int64(buf.Len()), fn: progress}
	resp, err := c.do(ctx, http.MethodPost, "/api/profile/image", body, mw.FormDataContentType(), true)
	if err != nil {
		return "", err
	}
	var out imageResponse
	if err := decodeJSON(resp, &out); err != nil {
		return "", fmt.Errorf("uploading avatar: %w", err)
	}
	if out.ImageURL == "" {
		return "", errors.New("uploading avatar: store returned no image_url")
	}
	return out.ImageURL, nil
}

// Login exchanges a username or email and password for a credential.
func (c *Client) Login(ctx context.Context, usernameOrEmail, password string) (LoginResult, error) {
	body, err := json.Marshal(LoginRequest{UsernameOrEmail: usernameOrEmail, Password: password})
	if err != nil {
		return LoginResult{}, fmt.Errorf("marshalling request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/login", bytes.NewReader(body), "application/json", false)
	if err != nil {
		return LoginResult{}, err
	}
	var out LoginResult
	if err := decodeJSON(resp, &out); err != nil {
		return LoginResult{}, fmt.Errorf("signing in: %w", err)
	}
	if out.Token == "" {
		return LoginResult{}, errors.New("signing in: store returned no token")
	}
	return out, nil
}

// Ping reports whether the store answers GET /health.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/health", nil, "", false)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, authed bool) (*http.Response, error) {
	var token string
	if authed {
		if c.creds == nil {
			return nil, ErrUnauthorized
		}
		t, err := c.creds.Credential()
		if err != nil {
			return nil, fmt.Errorf("%w (%w)", ErrUnauthorized, err)
		}
		token = t
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if pr, ok := body.(*progressReader); ok {
		req.ContentLength = pr.total
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store not reachable: %w", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return &APIError{Status: resp.StatusCode}
		}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			msg := eb.Error
			if msg == "" {
				msg = eb.Message
			}
			if msg != "" && eb.Details != "" {
				msg += ": " + eb.Details
			}
			return &APIError{Status: resp.StatusCode, Message: msg}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// progressReader reports cumulative bytes read.
type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}
