package cigen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGitHub struct {
	mu    sync.Mutex
	files map[string]string
	shas  map[string]string
	puts  []map[string]any
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/repos/octo/app/contents/"
	if len(r.URL.Path) <= len(prefix) || r.URL.Path[:len(prefix)] != prefix {
		http.NotFound(w, r)
		return
	}
	path := r.URL.Path[len(prefix):]

	switch r.Method {
	case http.MethodGet:
		content, ok := f.files[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"encoding": "base64",
			"name":     path,
			"path":     path,
			"sha":      f.shas[path],
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	case http.MethodPut:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body["path"] = path
		f.puts = append(f.puts, body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, h http.Handler) RepoClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cl := github.NewClient(nil).WithAuthToken("test-token")
	u, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	cl.BaseURL = u
	return NewGitHubClient(cl)
}

func TestGitHubClientGetFile(t *testing.T) {
	gh := &fakeGitHub{
		files: map[string]string{"Dockerfile": "FROM golang:1.22\n"},
		shas:  map[string]string{"Dockerfile": "d0ck"},
	}
	client := newTestClient(t, gh)

	content, sha, err := client.GetFile(context.Background(), "octo", "app", "Dockerfile", "main")
	require.NoError(t, err)
	assert.Equal(t, "FROM golang:1.22\n", content)
	assert.Equal(t, "d0ck", sha)

	_, _, err = client.GetFile(context.Background(), "octo", "app", "missing.txt", "main")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestGitHubClientPutFile(t *testing.T) {
	gh := &fakeGitHub{}
	client := newTestClient(t, gh)

	require.NoError(t, client.PutFile(context.Background(), "octo", "app", "a.yml", "main", "create", []byte("x: 1\n"), ""))
	require.NoError(t, client.PutFile(context.Background(), "octo", "app", "b.yml", "dev", "update", []byte("y: 2\n"), "old-sha"))

	require.Len(t, gh.puts, 2)
	assert.Equal(t, "create", gh.puts[0]["message"])
	assert.Equal(t, "main", gh.puts[0]["branch"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("x: 1\n")), gh.puts[0]["content"])
	assert.NotContains(t, gh.puts[0], "sha")
	assert.Equal(t, "old-sha", gh.puts[1]["sha"])
	assert.Equal(t, "dev", gh.puts[1]["branch"])
}

func TestGenerateAgainstGitHub(t *testing.T) {
	gh := &fakeGitHub{
		files: map[string]string{
			"Dockerfile":                    "FROM ruby:3.3\n",
			".github/workflows/ruby-ci.yml": "old",
		},
		shas: map[string]string{".github/workflows/ruby-ci.yml": "wf-sha"},
	}
	client := newTestClient(t, gh)
	gen := &Generator{
		NewClient: func(string) (RepoClient, error) { return client, nil },
		Token:     "t",
	}

	res, err := gen.Generate(context.Background(), GenerateArgs{RepoFullName: "octo/app"})
	require.NoError(t, err)
	assert.Equal(t, Ruby, res.LanguageDetected)
	assert.Equal(t, "Updated .github/workflows/ruby-ci.yml", res.CommitStatus)
	require.Len(t, gh.puts, 1)
	assert.Equal(t, "wf-sha", gh.puts[0]["sha"])
	assert.Equal(t, ".github/workflows/ruby-ci.yml", gh.puts[0]["path"])
}

func TestSplitRepo(t *testing.T) {
	owner, name, err := SplitRepo("octo/app")
	require.NoError(t, err)
	assert.Equal(t, "octo", owner)
	assert.Equal(t, "app", name)

	for _, bad := range []string{"", "octo", "/app", "octo/", "a/b/c"} {
		_, _, err := SplitRepo(bad)
		assert.Error(t, err, bad)
	}
}
