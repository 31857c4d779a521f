// Package remote talks to the receiver's file catalogue.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/filedrop/uploader/internal/models"
)

// ErrNotFound is returned when the receiver does not know a file id.
var ErrNotFound = errors.New("remote file not found")

// Error is a non-2xx answer from the receiver.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("receiver returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("receiver returned %d: %s", e.StatusCode, e.Message)
}

// Is makes a 404 match ErrNotFound.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client lists, inspects and deletes files stored by the receiver.
type Client struct {
	baseURL *url.URL
	hc      *http.Client
}

// NewClient creates a Client for the receiver at baseURL. A nil hc uses
// http.DefaultClient.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", baseURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: u, hc: hc}, nil
}

// List returns up to limit stored files, newest first; limit <= 0 uses the
// receiver's default. With useMsgpack the msgpack listing is requested.
func (c *Client) List(ctx context.Context, limit int, useMsgpack bool) ([]*models.FileInfo, error) {
	path := "/api/files"
	if useMsgpack {
		path += "/msgpack"
	}
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.do(ctx, http.MethodGet, path, q)
	if err != nil {
		return nil, err
	}

	var resp models.FileListResponse
	if useMsgpack {
		err = msgpack.Unmarshal(body, &resp)
	} else {
		err = json.Unmarshal(body, &resp)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding file list: %w", err)
	}
	return resp.Files, nil
}

// Get returns the metadata of file id.
func (c *Client) Get(ctx context.Context, id string) (*models.FileInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var info models.FileInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decoding file info: %w", err)
	}
	return &info, nil
}

// Delete removes file id from the receiver.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values) ([]byte, error) {
	u := *c.baseURL
	u.Path += path
	u.RawPath = ""
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeError(status int, body []byte) error {
	e := &Error{StatusCode: status}

	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		e.Code = apiErr.Code
		e.Message = apiErr.Message
		if e.Message == "" {
			e.Message = apiErr.Error
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
