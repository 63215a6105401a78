package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChat_DecodesUpstreamBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.False(t, req.Stream)
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "hi"},
			"done":    true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	body, err := c.Chat(context.Background(), ChatRequest{Model: "m", Stream: true})
	require.NoError(t, err)
	require.Equal(t, true, body["done"])
}

func TestChat_UpstreamErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "model not loaded"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Chat(context.Background(), ChatRequest{Model: "m"})
	require.EqualError(t, err, "model not loaded")
}

func TestChat_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Chat(context.Background(), ChatRequest{Model: "m"})
	require.Error(t, err)
}

func TestStream_ForcesStreamFlagAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Stream)
		fmt.Fprint(w, `{"message":{"content":"x"},"done":true}`+"\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	rc, err := c.Stream(context.Background(), ChatRequest{Model: "m"})
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Contains(t, string(b), `"done":true`)
}

func TestListModels_StripsLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "llama3.2:latest"},
				{"name": "codellama:13b"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	names, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"llama3.2", "codellama:13b"}, names)
}

func TestCreateModel_SurfacesStreamedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/create", r.URL.Path)
		fmt.Fprint(w, `{"status":"reading model metadata"}`+"\n")
		fmt.Fprint(w, `{"error":"base model missing"}`+"\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.CreateModel(context.Background(), "persona", "FROM llama3.2\n")
	require.EqualError(t, err, "base model missing")
}

func TestCreateModel_DrainsStatusStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"parsing modelfile"}`+"\n")
		fmt.Fprint(w, `{"status":"success"}`+"\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.CreateModel(context.Background(), "persona", "FROM llama3.2\n"))
}

func TestDeleteModel(t *testing.T) {
	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotName = req["name"]
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.DeleteModel(context.Background(), "persona"))
	require.Equal(t, "persona", gotName)
}
