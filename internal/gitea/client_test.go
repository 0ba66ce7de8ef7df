package gitea

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agncf/netfortress/internal/config"
)

func newTestClient(serverURL string) *Client {
	return NewClient(&config.GiteaConfig{
		URL:   serverURL,
		Token: "test-token",
		Org:   "agncf",
	})
}

func TestEnsureRepoAlreadyExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/repos/agncf/nyc1-configs", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"name": "nyc1-configs"}`))
	}))
	defer server.Close()

	repo, err := newTestClient(server.URL).EnsureRepo(context.Background(), "nyc1", "nyc1-configs")
	require.NoError(t, err)
	assert.Equal(t, "agncf/nyc1-configs", repo)
}

func TestEnsureRepoCreatesOrgAndRepo(t *testing.T) {
	var orgCreated, repoCreated bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/repos/agncf/nyc1-configs":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/orgs/agncf":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/admin/orgs":
			orgCreated = true
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"username": "agncf"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/orgs/agncf/repos":
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "nyc1-configs", payload["name"])
			assert.Equal(t, true, payload["private"])
			assert.Equal(t, "main", payload["default_branch"])
			repoCreated = true
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"name": "nyc1-configs"}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer server.Close()

	repo, err := newTestClient(server.URL).EnsureRepo(context.Background(), "nyc1", "nyc1-configs")
	require.NoError(t, err)
	assert.Equal(t, "agncf/nyc1-configs", repo)
	assert.True(t, orgCreated)
	assert.True(t, repoCreated)
}

func TestEnsureRepoCreateFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/orgs/agncf/repos" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message": "permission denied"}`))
			return
		}
		if r.URL.Path == "/api/v1/orgs/agncf" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"username": "agncf"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).EnsureRepo(context.Background(), "nyc1", "nyc1-configs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not create repo agncf/nyc1-configs")
	assert.Contains(t, err.Error(), "403")
}

func TestCommitConfigCreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/repos/agncf/nyc1-configs/contents/r1.txt", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			_, hasSHA := payload["sha"]
			assert.False(t, hasSHA, "create must omit blob sha")
			assert.Equal(t, "main", payload["branch"])

			decoded, err := base64.StdEncoding.DecodeString(payload["content"].(string))
			require.NoError(t, err)
			assert.Equal(t, "hostname r1\n", string(decoded))

			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"commit": {"sha": "abc123"}}`))
		}
	}))
	defer server.Close()

	sha, err := newTestClient(server.URL).CommitConfig(
		context.Background(), "agncf/nyc1-configs", "r1", "hostname r1\n", "backup r1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)
}

func TestCommitConfigUpdateSendsBlobSHA(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"sha": "blob-sha-1"}`))
		case http.MethodPut:
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "blob-sha-1", payload["sha"])
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"commit": {"sha": "def456"}}`))
		}
	}))
	defer server.Close()

	sha, err := newTestClient(server.URL).CommitConfig(
		context.Background(), "agncf/nyc1-configs", "r1", "hostname r1\n", "backup r1")
	require.NoError(t, err)
	assert.Equal(t, "def456", sha)
}

func TestCommitConfigFallsBackToLatestCommit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/repos/agncf/nyc1-configs/commits":
			assert.Equal(t, "r1.txt", r.URL.Query().Get("path"))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[{"sha": "latest-sha"}]`))
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	sha, err := newTestClient(server.URL).CommitConfig(
		context.Background(), "agncf/nyc1-configs", "r1", "hostname r1\n", "backup r1")
	require.NoError(t, err)
	assert.Equal(t, "latest-sha", sha)
}

func TestGetDiffInsufficientHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"sha": "only-one"}]`))
	}))
	defer server.Close()

	diff, err := newTestClient(server.URL).GetDiff(context.Background(), "agncf/nyc1-configs", "r1")
	require.NoError(t, err)
	assert.Contains(t, diff, "Only 1 commit(s) found for r1.txt")
}

func TestGetDiffReturnsPatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/repos/agncf/nyc1-configs/commits":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[{"sha": "new"}, {"sha": "old"}]`))
		case "/api/v1/repos/agncf/nyc1-configs/compare/old...new":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"files": [
				{"filename": "other.txt", "patch": "nope"},
				{"filename": "r1.txt", "patch": "@@ -1 +1 @@\n-a\n+b"}
			]}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer server.Close()

	diff, err := newTestClient(server.URL).GetDiff(context.Background(), "agncf/nyc1-configs", "r1")
	require.NoError(t, err)
	assert.Equal(t, "@@ -1 +1 @@\n-a\n+b", diff)
}

func TestGetDiffMatchesSubdirectoryPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/repos/agncf/nyc1-configs/commits":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[{"sha": "new"}, {"sha": "old"}]`))
		case "/api/v1/repos/agncf/nyc1-configs/compare/old...new":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"files": [
				{"filename": "other.txt", "patch": "nope"},
				{"filename": "archive/r1.txt", "patch": "@@ -2 +2 @@\n-x\n+y"}
			]}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer server.Close()

	diff, err := newTestClient(server.URL).GetDiff(context.Background(), "agncf/nyc1-configs", "r1")
	require.NoError(t, err)
	assert.Equal(t, "@@ -2 +2 @@\n-x\n+y", diff)
}

func TestGetDiffAPIErrorIsMessageNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	diff, err := newTestClient(server.URL).GetDiff(context.Background(), "agncf/nyc1-configs", "r1")
	require.NoError(t, err)
	assert.Contains(t, diff, "HTTP 500")
}
