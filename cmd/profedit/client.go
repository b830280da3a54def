package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/kalambet/profedit/internal/config"
	"github.com/kalambet/profedit/internal/profile"
)

var errServerDown = errors.New("server not reachable, is `profedit serve` running?")

type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// viewDoc is the edit view as the server renders it.
type viewDoc struct {
	Phase     string            `json:"phase"`
	Form      profile.Form      `json:"form"`
	Errors    map[string]string `json:"errors"`
	Save      string            `json:"save"`
	LoadError string            `json:"loadError"`
	SaveError string            `json:"saveError"`
	Navigate  string            `json:"navigate"`
	Stale     bool              `json:"stale"`
	SavedAt   time.Time         `json:"savedAt"`
	Upload    struct {
		State    string `json:"state"`
		Progress int    `json:"progress"`
		Error    string `json:"error"`
	} `json:"upload"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *apiClient) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w (%w)", errServerDown, err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *apiClient) patch(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

func (c *apiClient) put(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// postFile uploads data as the multipart field named field.
func (c *apiClient) postFile(ctx context.Context, path, field, name string, data []byte) (*http.Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req)
}

// awaitView follows the server's event stream until done reports true for a
// view, returning that view.
func (c *apiClient) awaitView(ctx context.Context, done func(viewDoc) bool) (viewDoc, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/profile/edit/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return viewDoc{}, fmt.Errorf("subscribing to events: %w", err)
	}
	defer conn.CloseNow()

	for {
		var v viewDoc
		if err := wsjson.Read(ctx, conn, &v); err != nil {
			return viewDoc{}, fmt.Errorf("reading events: %w", err)
		}
		if done(v) {
			conn.Close(websocket.StatusNormalClosure, "")
			return v, nil
		}
	}
}

// errorBody is the server's error envelope.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
	Navigate string `json:"navigate"`
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
			if eb.Navigate == "login" {
				return fmt.Errorf("%s Run `profedit login` first.", eb.Error.Message)
			}
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, eb.Error.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
