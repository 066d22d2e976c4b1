package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"boardsync/internal/api"
	"boardsync/internal/apiclient"
	"boardsync/internal/conflict"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_DecodesAndSendsToken(t *testing.T) {
	// Arrange
	boardID, columnID, issueID := uuid.New(), uuid.New(), uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/boards/"+boardID.String(), r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.Board{
			ID:      boardID,
			Title:   "Sprint",
			Columns: []api.Column{{ID: columnID, Name: "Todo", OrderVersion: 7}},
			Issues:  []api.Issue{{ID: issueID, Status: "Todo", Version: 3, Position: 1}},
		})
	}))
	defer srv.Close()
	client := apiclient.New(srv.URL, "tok")

	// Act
	board, err := client.Board(context.Background(), boardID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Sprint", board.Name)
	assert.Equal(t, int64(7), board.Columns[0].OrderVersion)
	issue, ok := board.Issue(issueID)
	require.True(t, ok)
	assert.Equal(t, int64(3), issue.Version)
}

func TestUpdateIssue_ConflictBecomesRecord(t *testing.T) {
	// Arrange
	lastUpdated := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.UpdateIssueRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(3), req.Version)

		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(conflict.NewResponse(&conflict.Error{
			ResourceName:   "issue",
			YourVersion:    3,
			CurrentVersion: 4,
			LastUpdated:    lastUpdated,
		}))
	}))
	defer srv.Close()
	client := apiclient.New(srv.URL, "tok")
	title := "x"

	// Act
	_, err := client.UpdateIssue(context.Background(), uuid.New(), api.UpdateIssueRequest{Version: 3, Title: &title})

	// Assert
	record, ok := conflict.As(err)
	require.True(t, ok)
	assert.Equal(t, int64(3), record.YourVersion)
	assert.Equal(t, int64(4), record.CurrentVersion)
	assert.True(t, lastUpdated.Equal(record.LastUpdated))
}

func TestErrors_MapToKinds(t *testing.T) {
	cases := map[int]error{
		http.StatusForbidden:    apiclient.ErrPermissionDenied,
		http.StatusUnauthorized: apiclient.ErrPermissionDenied,
		http.StatusNotFound:     apiclient.ErrNotFound,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "nope"})
		}))
		client := apiclient.New(srv.URL, "tok")

		err := client.DeleteIssue(context.Background(), uuid.New())

		assert.ErrorIs(t, err, want, "status %d", status)
		srv.Close()
	}
}

func TestErrors_PlainConflictWithoutRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "duplicate"})
	}))
	defer srv.Close()

	_, err := apiclient.New(srv.URL, "").Reorder(context.Background(), uuid.New(), uuid.New(), nil, 0)

	var statusErr *apiclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.Code)
	assert.False(t, conflict.IsVersionConflict(err))
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := apiclient.New(url, "tok").Me(context.Background())

	var netErr *apiclient.NetworkError
	assert.True(t, errors.As(err, &netErr))
}

func TestSocketURL(t *testing.T) {
	wsURL, err := apiclient.New("https://boards.example.com/", "").SocketURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://boards.example.com/boards/ws", wsURL)

	wsURL, err = apiclient.New("http://localhost:8080", "").SocketURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/boards/ws", wsURL)
}
