package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/image-gen-mcp/internal/gemini"
	"github.com/ironsheep/image-gen-mcp/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func postMCP(t *testing.T, url, session, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeMCP(t *testing.T, resp *http.Response) MCPResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var out MCPResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHTTP_Healthz(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestHTTP_SessionLifecycle(t *testing.T) {
	gen := &fakeGenerator{images: []gemini.Image{{Data: []byte("x"), MimeType: "image/png"}}}
	ts := httptest.NewServer(newTestServer(t, gen, nil).Handler())
	defer ts.Close()

	resp := postMCP(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	session := resp.Header.Get(sessionHeader)
	require.NotEmpty(t, session)
	initResp := decodeMCP(t, resp)
	assert.Nil(t, initResp.Error)

	resp = postMCP(t, ts.URL, session, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = postMCP(t, ts.URL, session, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"generate","arguments":{"prompt":"hi"}}}`)
	call := decodeMCP(t, resp)
	require.Nil(t, call.Error)
	result := call.Result.(map[string]interface{})
	assert.Len(t, result["content"], 2)
	assert.Equal(t, 1, gen.calls())

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(sessionHeader, session)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	resp = postMCP(t, ts.URL, session, `{"jsonrpc":"2.0","id":3,"method":"ping"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_StatelessRequest(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil, nil).Handler())
	defer ts.Close()

	out := decodeMCP(t, postMCP(t, ts.URL, "", `{"jsonrpc":"2.0","id":"a","method":"ping"}`))
	assert.Equal(t, "a", out.ID)
	assert.Nil(t, out.Error)
}

func TestHTTP_UnknownSession(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil, nil).Handler())
	defer ts.Close()

	resp := postMCP(t, ts.URL, "not-a-session", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_ParseError(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil, nil).Handler())
	defer ts.Close()

	out := decodeMCP(t, postMCP(t, ts.URL, "", `{"jsonrpc":`))
	require.NotNil(t, out.Error)
	assert.Equal(t, codeParseError, out.Error.Code)
}

func TestHTTP_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/mcp")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTP_Metrics(t *testing.T) {
	gen := &fakeGenerator{images: []gemini.Image{{Data: []byte("x"), MimeType: "image/png"}}}
	saver := &fakeSaver{path: "/tmp/out.png"}
	s := New(gen, saver, zaptest.NewLogger(t), WithWorkDir(t.TempDir()), WithMetrics(metrics.NewCollector()))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	decodeMCP(t, postMCP(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"generate","arguments":{"prompt":"hi"}}}`))
	decodeMCP(t, postMCP(t, ts.URL, "", `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"nope","arguments":{}}}`))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `image_gen_mcp_tool_calls_total{outcome="success",tool="generate"} 1`)
	assert.Contains(t, string(body), `image_gen_mcp_tool_calls_total{outcome="invalid",tool="unknown"} 1`)
	assert.Contains(t, string(body), "image_gen_mcp_images_saved_total 1")
}

func TestHTTP_NilMetricsCollector(t *testing.T) {
	gen := &fakeGenerator{images: []gemini.Image{{Data: []byte("x"), MimeType: "image/png"}}}
	s := New(gen, &fakeSaver{}, zaptest.NewLogger(t), WithWorkDir(t.TempDir()), WithMetrics(nil))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	out := decodeMCP(t, postMCP(t, ts.URL, "", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"generate","arguments":{"prompt":"hi"}}}`))
	assert.Nil(t, out.Error)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_NoMetricsRouteByDefault(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, nil, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newTestServer(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
