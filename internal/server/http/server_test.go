package httpserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/oxbow-io/oxbow/internal/config"
	"github.com/oxbow-io/oxbow/internal/messages"
	"github.com/oxbow-io/oxbow/internal/runtime"
	pebblestore "github.com/oxbow-io/oxbow/internal/storage/pebble"
)

func newTestServer(t *testing.T) (*httptest.Server, *runtime.Runtime) {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfgpkg.Default(),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	ts := httptest.NewServer(New(rt).Handler())
	t.Cleanup(ts.Close)
	return ts, rt
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func appendBlocks(t *testing.T, ts *httptest.Server, stream string, ids ...string) {
	t.Helper()
	events := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		events = append(events, map[string]string{
			"id":    id,
			"block": fmt.Sprintf("id: %s\ndata: payload-%s", id, id),
		})
	}
	resp := postJSON(t, ts.URL+"/v1/streams/append", map[string]any{"stream": stream, "events": events})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("append status: %d", resp.StatusCode)
	}
}

func finalize(t *testing.T, ts *httptest.Server, stream string) {
	t.Helper()
	resp := postJSON(t, ts.URL+"/v1/streams/finalize", map[string]string{"stream": stream})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("finalize status: %d", resp.StatusCode)
	}
}

func TestAppendAndCount(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/streams/append", map[string]any{
		"stream": "s1",
		"events": []map[string]string{
			{"id": "a", "block": "id: a\ndata: one"},
			{"id": "a", "block": "id: a\ndata: one"},
			{"id": "b", "block": "id: b\ndata: two"},
		},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var out struct {
		OK    bool `json:"ok"`
		Count int  `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.OK || out.Count != 2 {
		t.Fatalf("out: %+v", out)
	}
}

func TestAppendValidationAndConflict(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/streams/append", map[string]any{"stream": "s1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty batch status: %d", resp.StatusCode)
	}

	appendBlocks(t, ts, "s1", "a")
	finalize(t, ts, "s1")
	finalize(t, ts, "s1") // idempotent

	resp = postJSON(t, ts.URL+"/v1/streams/append", map[string]any{
		"stream": "s1",
		"events": []map[string]string{{"id": "b", "block": "id: b\ndata: x"}},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("append after finalize status: %d", resp.StatusCode)
	}
}

func TestResumeReplaysFinalizedStream(t *testing.T) {
	ts, _ := newTestServer(t)
	appendBlocks(t, ts, "s1", "a", "b", "c")
	finalize(t, ts, "s1")

	resp, err := http.Get(ts.URL + "/v1/streams/resume?stream=s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	want := "id: a\ndata: payload-a\n\nid: b\ndata: payload-b\n\nid: c\ndata: payload-c\n\n"
	if string(body) != want {
		t.Fatalf("body:\n%q\nwant:\n%q", body, want)
	}
}

func TestResumeFromCursor(t *testing.T) {
	ts, _ := newTestServer(t)
	appendBlocks(t, ts, "s1", "a", "b", "c")
	finalize(t, ts, "s1")

	req, _ := http.NewRequest("GET", ts.URL+"/v1/streams/resume?stream=s1", nil)
	req.Header.Set("Last-Event-ID", "b")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "id: c\ndata: payload-c\n\n" {
		t.Fatalf("body: %q", body)
	}
}

func TestResumeLiveThenFinalize(t *testing.T) {
	ts, _ := newTestServer(t)
	appendBlocks(t, ts, "s1", "a")

	resp, err := http.Get(ts.URL + "/v1/streams/resume?stream=s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	rd := bufio.NewReader(resp.Body)

	readBlock := func(wantID string) {
		t.Helper()
		var block strings.Builder
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v (got %q)", err, block.String())
			}
			if line == "\n" {
				break
			}
			block.WriteString(line)
		}
		if !strings.Contains(block.String(), "id: "+wantID) {
			t.Fatalf("block: %q, want id %s", block.String(), wantID)
		}
	}

	readBlock("a")
	appendBlocks(t, ts, "s1", "b")
	readBlock("b")

	finalize(t, ts, "s1")
	if _, err := rd.ReadString('\n'); err != io.EOF {
		t.Fatalf("expected EOF after finalize, got %v", err)
	}
}

func TestStatsAndHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	appendBlocks(t, ts, "s1", "a", "b")

	resp, err := http.Get(ts.URL + "/v1/streams/stats?stream=s1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	defer resp.Body.Close()
	var st struct {
		Events    int  `json:"events"`
		Finalized bool `json:"finalized"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Events != 2 || st.Finalized {
		t.Fatalf("stats: %+v", st)
	}

	hresp, err := http.Get(ts.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	hresp.Body.Close()
	if hresp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", hresp.StatusCode)
	}

	mresp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer mresp.Body.Close()
	mb, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(mb), "oxbow_buffer_appended_events_total") {
		t.Fatal("metrics endpoint missing buffer series")
	}
}

func TestIngestEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	src := "id: e1\ndata: one\n\nid: e2\ndata: two\n\n"
	resp, err := http.Post(ts.URL+"/v1/streams/ingest?stream=s1", "text/event-stream", strings.NewReader(src))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("ingest status: %d", resp.StatusCode)
	}

	rresp, err := http.Get(ts.URL + "/v1/streams/resume?stream=s1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	defer rresp.Body.Close()
	body, _ := io.ReadAll(rresp.Body)
	if !strings.Contains(string(body), "id: e1") || !strings.Contains(string(body), "id: e2") {
		t.Fatalf("body: %q", body)
	}
}

func TestTailWithFilter(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/v1/streams/append", map[string]any{
		"stream": "s1",
		"events": []map[string]string{
			{"id": "a", "block": `{"kind":"delta"}`},
			{"id": "b", "block": `{"kind":"done"}`},
		},
	})
	resp.Body.Close()
	finalize(t, ts, "s1")

	tresp, err := http.Get(ts.URL + `/v1/streams/tail?stream=s1&filter=` + "json.kind%20%3D%3D%20%22delta%22")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	defer tresp.Body.Close()
	body, _ := io.ReadAll(tresp.Body)
	if !strings.Contains(string(body), `"id":"a"`) || strings.Contains(string(body), `"id":"b"`) {
		t.Fatalf("tail body: %q", body)
	}

	bad, err := http.Get(ts.URL + "/v1/streams/tail?stream=s1&filter=%5Bbroken")
	if err != nil {
		t.Fatalf("tail bad filter: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad filter status: %d", bad.StatusCode)
	}
}

func TestMessagesCRUDAndChatStreamFallback(t *testing.T) {
	ts, rt := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/messages", messages.Message{
		ID:          "m1",
		ChatID:      "c1",
		Role:        "assistant",
		Content:     json.RawMessage(`[{"type":"text","text":"done"}]`),
		UpdatedAtMs: time.Now().UnixMilli(),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status: %d", resp.StatusCode)
	}

	gresp, err := http.Get(ts.URL + "/v1/messages/m1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	defer gresp.Body.Close()
	var m messages.Message
	if err := json.NewDecoder(gresp.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ChatID != "c1" {
		t.Fatalf("message: %+v", m)
	}

	// No active stream: the persisted message comes back as one synthesized
	// appendMessage event.
	sresp, err := http.Get(ts.URL + "/v1/chats/stream?message_id=m1")
	if err != nil {
		t.Fatalf("chat stream: %v", err)
	}
	defer sresp.Body.Close()
	body, _ := io.ReadAll(sresp.Body)
	if !strings.HasPrefix(string(body), "event: appendMessage\n") || !strings.Contains(string(body), `"chatId":"c1"`) {
		t.Fatalf("fallback body: %q", body)
	}

	// Unknown message: 204 so clients stop retrying.
	nresp, err := http.Get(ts.URL + "/v1/chats/stream?message_id=missing")
	if err != nil {
		t.Fatalf("chat stream missing: %v", err)
	}
	nresp.Body.Close()
	if nresp.StatusCode != http.StatusNoContent {
		t.Fatalf("missing message status: %d", nresp.StatusCode)
	}

	// Active stream: the request attaches to the live buffer.
	appendBlocks(t, ts, "st-1", "e1")
	finalize(t, ts, "st-1")
	if err := rt.Messages().Put(t.Context(), messages.Message{ID: "m2", ActiveStreamID: "st-1", UpdatedAtMs: 1}); err != nil {
		t.Fatalf("put m2: %v", err)
	}
	aresp, err := http.Get(ts.URL + "/v1/chats/stream?message_id=m2")
	if err != nil {
		t.Fatalf("chat stream active: %v", err)
	}
	defer aresp.Body.Close()
	abody, _ := io.ReadAll(aresp.Body)
	if !strings.Contains(string(abody), "id: e1") {
		t.Fatalf("active stream body: %q", abody)
	}
}
