package manual

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/hurdle/internal/challenge"
)

func setupServer(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	g := NewGateway(time.Minute, zaptest.NewLogger(t))
	ts := httptest.NewServer(NewServer("127.0.0.1:0", g, zaptest.NewLogger(t)).Handler())
	t.Cleanup(ts.Close)
	return g, ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var body struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data
}

func TestServer_Health(t *testing.T) {
	_, ts := setupServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_TicketLifecycle(t *testing.T) {
	g, ts := setupServer(t)
	res := requestAsync(context.Background(), g, testRequest("s1"))
	waitPending(t, g, 1)

	resp, err := http.Get(ts.URL + "/tickets")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]Ticket](t, resp)
	require.Len(t, list, 1)
	id := list[0].ID
	assert.Equal(t, "s1", list[0].SessionID)

	resp, err = http.Get(ts.URL + "/tickets/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image_captcha", decode[Ticket](t, resp).Kind)

	resp, err = http.Get(ts.URL + "/tickets/" + id + "/screenshot")
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png)

	resp, err = http.Post(ts.URL+"/tickets/"+id+"/resolve", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	r := <-res
	assert.Equal(t, challenge.SignalResolved, r.sig)

	resp, err = http.Post(ts.URL+"/tickets/"+id+"/abandon", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_Abandon(t *testing.T) {
	g, ts := setupServer(t)
	res := requestAsync(context.Background(), g, testRequest("s1"))
	id := waitPending(t, g, 1)[0].ID

	resp, err := http.Post(ts.URL+"/tickets/"+id+"/abandon", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, challenge.SignalAbandoned, (<-res).sig)
}

func TestServer_UnknownTicket(t *testing.T) {
	_, ts := setupServer(t)
	for _, path := range []string{"/tickets/missing", "/tickets/missing/screenshot"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestServer_StartStops(t *testing.T) {
	g := NewGateway(time.Minute, zaptest.NewLogger(t))
	srv := NewServer("127.0.0.1:0", g, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
