package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pmerrell/ollamadesk/internal/history"
	"github.com/pmerrell/ollamadesk/internal/llm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&history.Session{}, &history.Turn{}))
	require.NoError(t, gdb.Exec("CREATE VIRTUAL TABLE turns_fts USING fts5(prompt, reply)").Error)
	return gdb
}

func newTestRelay(t *testing.T, upstreamURL string) (*Relay, *gorm.DB) {
	t.Helper()
	gdb := openTestDB(t)
	rec := history.NewRecorder(gdb, zap.NewNop())
	return New(llm.NewClient(upstreamURL), rec, zap.NewNop()), gdb
}

func streamLines(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprint(w, line)
			f.Flush()
		}
	}
}

func TestSend_RecordsBeforeReturning(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "llama3.2", req.Model)
		require.False(t, req.Stream)
		require.InDelta(t, 0.7, req.Temperature, 1e-9) // default applied

		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "Hello back"},
			"done":    true,
		})
	}))
	defer upstream.Close()

	r, gdb := newTestRelay(t, upstream.URL)

	body, err := r.Send(context.Background(), SendRequest{
		Prompt:     "Hello",
		Model:      "llama3.2",
		SessionUID: "sess-1",
		TurnUID:    "turn-1",
	})
	require.NoError(t, err)
	require.Equal(t, "sess-1", body["sessionUid"])
	require.Equal(t, "turn-1", body["chatUid"])

	var turn history.Turn
	require.NoError(t, gdb.Where("uid = ?", "turn-1").First(&turn).Error)
	require.Equal(t, "Hello", turn.Prompt)
	require.Equal(t, "Hello back", turn.Reply)

	var sess history.Session
	require.NoError(t, gdb.Where("uid = ?", "sess-1").First(&sess).Error)
}

func TestSend_UpstreamErrorRecordsNothing(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	r, gdb := newTestRelay(t, upstream.URL)

	_, err := r.Send(context.Background(), SendRequest{
		Prompt: "Hello", Model: "llama3.2", SessionUID: "s", TurnUID: "c",
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, gdb.Model(&history.Turn{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestStream_RoundTripEqualsRecordedReply(t *testing.T) {
	// lines deliberately split mid-JSON across writes
	upstream := httptest.NewServer(streamLines(
		`{"message":{"role":"assistant","content":"Hel`,
		"lo\"},\"done\":false}\n",
		`{"message":{"content":" wor"},"done":false}`+"\n",
		`{"message":{"content":"ld"},"done":true}`+"\n",
	))
	defer upstream.Close()

	r, gdb := newTestRelay(t, upstream.URL)

	var out bytes.Buffer
	err := r.Stream(context.Background(), SendRequest{
		Prompt: "Hello", Model: "llama3.2", SessionUID: "sess-1", TurnUID: "turn-1",
	}, &out)
	require.NoError(t, err)

	// pass-through is verbatim
	require.Contains(t, out.String(), `"done":true`)

	var turn history.Turn
	require.NoError(t, gdb.Where("uid = ?", "turn-1").First(&turn).Error)
	require.Equal(t, "Hello world", turn.Reply)

	// spot-check round-trip equality against the forwarded bytes
	var rebuilt bytes.Buffer
	for _, line := range bytes.Split(out.Bytes(), []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk llm.StreamChunk
		require.NoError(t, json.Unmarshal(line, &chunk))
		rebuilt.WriteString(chunk.Message.Content)
	}
	require.Equal(t, turn.Reply, rebuilt.String())
}

func TestStream_MalformedLineForwardedButNotAccumulated(t *testing.T) {
	upstream := httptest.NewServer(streamLines(
		`{"message":{"content":"a"},"done":false}`+"\n",
		"not json\n",
		`{"message":{"content":"b"},"done":true}`+"\n",
	))
	defer upstream.Close()

	r, gdb := newTestRelay(t, upstream.URL)

	var out bytes.Buffer
	err := r.Stream(context.Background(), SendRequest{
		Prompt: "p", Model: "m", SessionUID: "s", TurnUID: "c",
	}, &out)
	require.NoError(t, err)

	require.Contains(t, out.String(), "not json")

	var turn history.Turn
	require.NoError(t, gdb.Where("uid = ?", "c").First(&turn).Error)
	require.Equal(t, "ab", turn.Reply)
}

// cancelAfterWriter cancels a context once the first chunk has been
// written, simulating a client that drops mid-stream.
type cancelAfterWriter struct {
	cancel context.CancelFunc
	buf    bytes.Buffer
}

func (w *cancelAfterWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.cancel()
	return n, err
}

func TestStream_AbortRecordsNothing(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		fmt.Fprint(w, `{"message":{"content":"partial"},"done":false}`+"\n")
		f.Flush()
		// hold the stream open until the client goes away
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer upstream.Close()
	defer close(release)

	r, gdb := newTestRelay(t, upstream.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &cancelAfterWriter{cancel: cancel}

	err := r.Stream(ctx, SendRequest{
		Prompt: "p", Model: "m", SessionUID: "s", TurnUID: "aborted-turn",
	}, w)
	require.NoError(t, err) // abort is a normal termination path

	var count int64
	require.NoError(t, gdb.Model(&history.Turn{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestStream_ErrorLineMidStreamRecordsNothing(t *testing.T) {
	upstream := httptest.NewServer(streamLines(
		`{"message":{"content":"par"},"done":false}`+"\n",
		`{"error":"model runner crashed"}`+"\n",
	))
	defer upstream.Close()

	r, gdb := newTestRelay(t, upstream.URL)

	var out bytes.Buffer
	err := r.Stream(context.Background(), SendRequest{
		Prompt: "p", Model: "m", SessionUID: "s", TurnUID: "c",
	}, &out)
	require.NoError(t, err)

	// the error line still reached the client verbatim
	require.Contains(t, out.String(), "model runner crashed")

	var count int64
	require.NoError(t, gdb.Model(&history.Turn{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestStream_TruncatedWithoutFinalChunkRecordsNothing(t *testing.T) {
	upstream := httptest.NewServer(streamLines(
		`{"message":{"content":"par"},"done":false}` + "\n",
	))
	defer upstream.Close()

	r, gdb := newTestRelay(t, upstream.URL)

	var out bytes.Buffer
	err := r.Stream(context.Background(), SendRequest{
		Prompt: "p", Model: "m", SessionUID: "s", TurnUID: "c",
	}, &out)
	require.NoError(t, err)

	var count int64
	require.NoError(t, gdb.Model(&history.Turn{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestStream_UpstreamRejectionRecordsNothing(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer upstream.Close()

	r, gdb := newTestRelay(t, upstream.URL)

	var out bytes.Buffer
	err := r.Stream(context.Background(), SendRequest{
		Prompt: "p", Model: "nope", SessionUID: "s", TurnUID: "c",
	}, &out)
	require.Error(t, err)
	require.Zero(t, out.Len())

	var count int64
	require.NoError(t, gdb.Model(&history.Turn{}).Count(&count).Error)
	require.Zero(t, count)
}
