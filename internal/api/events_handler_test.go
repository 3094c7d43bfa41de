package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/events"
)

func TestEventsStreamDeliversToOwnChannel(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ownerToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)

	// The initial comment confirms the subscription is live before we
	// publish anything.
	require.True(t, scanner.Scan())
	assert.Equal(t, ": subscribed user-1", scanner.Text())

	ts.broadcaster.Publish("user-1", events.ProcessingProgress, "vid-1", map[string]any{"progress": 40})
	ts.broadcaster.Publish("user-2", events.ProcessingProgress, "vid-other", nil)

	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "event: "+events.ProcessingProgress)
	assert.Contains(t, joined, `"videoId":"vid-1"`)
	assert.NotContains(t, joined, "vid-other", "events for other recipients never leak")
}

func TestEventsStreamRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodGet, "/api/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
