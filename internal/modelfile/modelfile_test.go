package modelfile_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmerrell/ollamadesk/internal/db"
	"github.com/pmerrell/ollamadesk/internal/llm"
	"github.com/pmerrell/ollamadesk/internal/modelfile"
)

type fakeOllama struct {
	created map[string]string // name -> modelfile text
	deleted []string
	failAll bool
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/create", func(w http.ResponseWriter, r *http.Request) {
		if f.failAll {
			fmt.Fprint(w, `{"error":"disk full"}`+"\n")
			return
		}
		var req struct {
			Name      string `json:"name"`
			Modelfile string `json:"modelfile"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.created[req.Name] = req.Modelfile
		fmt.Fprint(w, `{"status":"success"}`+"\n")
	})
	mux.HandleFunc("/api/delete", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.deleted = append(f.deleted, req.Name)
	})
	return mux
}

func newService(t *testing.T, fake *fakeOllama) *modelfile.Service {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	gdb, err := db.OpenMemory()
	require.NoError(t, err)
	return modelfile.NewService(gdb, llm.NewClient(srv.URL), zap.NewNop())
}

func TestCreate_PushesRenderedModelfile(t *testing.T) {
	fake := &fakeOllama{created: map[string]string{}}
	svc := newService(t, fake)

	m, err := svc.Create(context.Background(), "pirate", "llama3.2", "Talk like a pirate.")
	require.NoError(t, err)
	require.NotEmpty(t, m.UID)

	require.Equal(t,
		"FROM llama3.2\nSYSTEM \"\"\"Talk like a pirate.\"\"\"\n",
		fake.created["pirate"])

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreate_UpstreamFailureRollsBack(t *testing.T) {
	fake := &fakeOllama{created: map[string]string{}, failAll: true}
	svc := newService(t, fake)

	_, err := svc.Create(context.Background(), "pirate", "llama3.2", "Arr.")
	require.Error(t, err)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestUpdate_RepushesUnderSameName(t *testing.T) {
	fake := &fakeOllama{created: map[string]string{}}
	svc := newService(t, fake)

	m, err := svc.Create(context.Background(), "pirate", "llama3.2", "Arr.")
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), m.UID, "", "Arr, matey.")
	require.NoError(t, err)
	require.Equal(t, "llama3.2", updated.BaseModel)
	require.Contains(t, fake.created["pirate"], "Arr, matey.")
}

func TestDelete_RemovesRowAndUpstreamModel(t *testing.T) {
	fake := &fakeOllama{created: map[string]string{}}
	svc := newService(t, fake)

	m, err := svc.Create(context.Background(), "pirate", "llama3.2", "Arr.")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), m.UID))
	require.Equal(t, []string{"pirate"}, fake.deleted)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}
