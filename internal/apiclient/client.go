// Package apiclient talks to the board REST endpoints and maps their
// failures onto the error kinds the sync engine distinguishes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"boardsync/internal/api"
	"boardsync/internal/conflict"
	"boardsync/internal/ordering"

	"github.com/google/uuid"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
)

// NetworkError is a request that never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is any other non-2xx answer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server replied %d: %s", e.Code, e.Message)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SocketURL is the websocket endpoint matching the base URL.
func (c *Client) SocketURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/boards/ws")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *Client) Me(ctx context.Context) (api.User, error) {
	var user api.User
	err := c.do(ctx, http.MethodGet, "/me", nil, &user)
	return user, err
}

// Board fetches the server truth of a board.
func (c *Client) Board(ctx context.Context, boardID uuid.UUID) (ordering.Board, error) {
	var body api.Board
	if err := c.do(ctx, http.MethodGet, "/boards/"+boardID.String(), nil, &body); err != nil {
		return ordering.Board{}, err
	}
	return ToBoard(body), nil
}

// Reorder commits the full order of one column. orderVersion zero skips the
// server's order version check.
func (c *Client) Reorder(ctx context.Context, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) (api.ReorderResponse, error) {
	var resp api.ReorderResponse
	err := c.do(ctx, http.MethodPost, "/boards/"+boardID.String()+"/issues/reorder", api.ReorderRequest{
		ColumnID:        columnID,
		OrderedIssueIDs: orderedIDs,
		Version:         orderVersion,
	}, &resp)
	return resp, err
}

func (c *Client) UpdateIssue(ctx context.Context, issueID uuid.UUID, req api.UpdateIssueRequest) (ordering.Issue, error) {
	var body api.Issue
	if err := c.do(ctx, http.MethodPatch, "/issues/"+issueID.String(), req, &body); err != nil {
		return ordering.Issue{}, err
	}
	return ToIssue(body), nil
}

func (c *Client) CreateIssue(ctx context.Context, boardID uuid.UUID, req api.CreateIssueRequest) (ordering.Issue, error) {
	var body api.Issue
	if err := c.do(ctx, http.MethodPost, "/boards/"+boardID.String()+"/issues", req, &body); err != nil {
		return ordering.Issue{}, err
	}
	return ToIssue(body), nil
}

func (c *Client) DeleteIssue(ctx context.Context, issueID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/issues/"+issueID.String(), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	}

	return decodeError(resp.StatusCode, raw)
}

func decodeError(status int, raw []byte) error {
	if status == conflict.StatusCode {
		var body conflict.Response
		if err := json.Unmarshal(raw, &body); err == nil {
			if record := conflict.FromResponse(body); record != nil {
				return record
			}
		}
	}

	var body api.ErrorResponse
	_ = json.Unmarshal(raw, &body)
	message := body.Error
	if message == "" {
		message = http.StatusText(status)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	}
	return &StatusError{Code: status, Message: message}
}

func ToBoard(body api.Board) ordering.Board {
	board := ordering.Board{
		ID:      body.ID,
		Name:    body.Title,
		Columns: make([]ordering.Column, len(body.Columns)),
		Issues:  make([]ordering.Issue, len(body.Issues)),
	}
	for i, column := range body.Columns {
		board.Columns[i] = ordering.Column{
			ID:           column.ID,
			Name:         column.Name,
			Position:     column.Position,
			OrderVersion: column.OrderVersion,
		}
	}
	for i, issue := range body.Issues {
		board.Issues[i] = ToIssue(issue)
	}
	return board
}

func ToIssue(body api.Issue) ordering.Issue {
	return ordering.Issue{
		ID:          body.ID,
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
		Version:     body.Version,
		ParentID:    body.ParentID,
		Position:    body.Position,
	}
}
