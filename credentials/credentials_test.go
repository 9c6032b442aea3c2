package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeKeyService is an in-memory stand-in for the key-management API.
type fakeKeyService struct {
	mu      sync.Mutex
	nextID  int
	keys    map[string]Credential
	failOn  string // "list", "create", "revoke"
	creates int
	revokes int
}

func newFakeKeyService() *fakeKeyService {
	return &fakeKeyService{keys: map[string]Credential{}}
}

func (f *fakeKeyService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api-keys", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			if f.failOn == "list" {
				http.Error(w, "boom", http.StatusBadRequest)
				return
			}
			out := make([]Credential, 0, len(f.keys))
			for _, c := range f.keys {
				out = append(out, c)
			}
			_ = json.NewEncoder(w).Encode(out)
		case http.MethodPost:
			if f.failOn == "create" {
				http.Error(w, "boom", http.StatusBadRequest)
				return
			}
			var body struct {
				Name string `json:"name"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.nextID++
			f.creates++
			id := fmt.Sprintf("key-%d", f.nextID)
			f.keys[id] = Credential{ID: id, Name: body.Name}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Created{ID: id, Name: body.Name, Secret: "secret-" + id})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api-keys/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if f.failOn == "revoke" {
			http.Error(w, "boom", http.StatusBadRequest)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api-keys/")
		if _, ok := f.keys[id]; !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		delete(f.keys, id)
		f.revokes++
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeKeyService) countNamed(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.keys {
		if c.Name == name {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, svc *fakeKeyService) *Client {
	t.Helper()
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-api-key")
}

func TestRotateIssuesFreshCredential(t *testing.T) {
	svc := newFakeKeyService()
	client := newTestClient(t, svc)

	secret, err := client.Rotate(context.Background(), "cast", []string{"asset.view"})
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.Equal(t, 1, svc.countNamed("cast"))
}

func TestRotateTwiceLeavesSingleCredential(t *testing.T) {
	svc := newFakeKeyService()
	client := newTestClient(t, svc)

	first, err := client.Rotate(context.Background(), "cast", []string{"asset.view"})
	require.NoError(t, err)

	second, err := client.Rotate(context.Background(), "cast", []string{"asset.view"})
	require.NoError(t, err)

	require.NotEqual(t, first, second, "a rotation must issue a fresh secret")
	require.Equal(t, 1, svc.countNamed("cast"), "at most one cast credential may exist")
	require.Equal(t, 1, svc.revokes, "the stale credential must have been revoked")
}

func TestRotateLeavesUnrelatedCredentialsAlone(t *testing.T) {
	svc := newFakeKeyService()
	client := newTestClient(t, svc)

	_, err := client.Create(context.Background(), "backup", []string{"asset.view"})
	require.NoError(t, err)

	_, err = client.Rotate(context.Background(), "cast", []string{"asset.view"})
	require.NoError(t, err)

	require.Equal(t, 1, svc.countNamed("backup"))
	require.Equal(t, 1, svc.countNamed("cast"))
}

func TestRotateFailsWhenCreateFails(t *testing.T) {
	svc := newFakeKeyService()
	svc.failOn = "create"
	client := newTestClient(t, svc)

	_, err := client.Rotate(context.Background(), "cast", []string{"asset.view"})
	require.Error(t, err)
}

func TestListDecodesCredentials(t *testing.T) {
	svc := newFakeKeyService()
	client := newTestClient(t, svc)

	_, err := client.Create(context.Background(), "cast", []string{"asset.view"})
	require.NoError(t, err)

	creds, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	require.Equal(t, "cast", creds[0].Name)
}
