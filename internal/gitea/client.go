// Package gitea provides a client for the Gitea v1 REST API.
package gitea

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agncf/netfortress/internal/config"
)

// Client talks to a Gitea instance. All repositories live under a single
// organisation; devices map to one file per repo ({hostname}.txt on main).
type Client struct {
	baseURL string
	token   string
	org     string
	client  *http.Client
}

// NewClient creates a new Gitea client.
func NewClient(cfg *config.GiteaConfig) *Client {
	// Lab Gitea instances commonly run with self-signed certs
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	return &Client{
		baseURL: cfg.URL,
		token:   cfg.Token,
		org:     cfg.Org,
		client: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
	}
}

type contentsResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type commitEntry struct {
	SHA string `json:"sha"`
}

type compareResponse struct {
	Files []struct {
		Filename string `json:"filename"`
		Patch    string `json:"patch"`
	} `json:"files"`
}

func (c *Client) do(ctx context.Context, method, url string, payload any) (*http.Response, []byte, error) {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, respBody, nil
}

// EnsureRepo makes sure {org}/{repoName} exists, creating the organisation
// and repository on first use. Returns the full repo name.
func (c *Client) EnsureRepo(ctx context.Context, siteCode, repoName string) (string, error) {
	repoFull := c.org + "/" + repoName

	resp, _, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/v1/repos/"+repoFull, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusOK {
		return repoFull, nil
	}

	orgResp, _, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/v1/orgs/"+c.org, nil)
	if err != nil {
		return "", err
	}
	if orgResp.StatusCode == http.StatusNotFound {
		// Needs an admin token; creation failure is non-fatal because the
		// org may already be provisioned out of band.
		createResp, createBody, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/admin/orgs", map[string]any{
			"username":   c.org,
			"visibility": "private",
		})
		if err != nil {
			return "", err
		}
		if createResp.StatusCode != http.StatusOK && createResp.StatusCode != http.StatusCreated {
			slog.Warn("could not create gitea org",
				"org", c.org,
				"status", createResp.StatusCode,
				"body", string(createBody))
		}
	}

	createResp, createBody, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/orgs/"+c.org+"/repos", map[string]any{
		"name":           repoName,
		"description":    fmt.Sprintf("Config backups — site %s", siteCode),
		"private":        true,
		"auto_init":      true,
		"default_branch": "main",
	})
	if err != nil {
		return "", err
	}
	if createResp.StatusCode == http.StatusOK || createResp.StatusCode == http.StatusCreated {
		slog.Info("created gitea repo", "repo", repoFull)
		return repoFull, nil
	}

	return "", fmt.Errorf("could not create repo %s (status %d): %s",
		repoFull, createResp.StatusCode, string(createBody))
}

// CommitConfig creates or updates {hostname}.txt in repo via the Contents
// API and returns the commit SHA.
func (c *Client) CommitConfig(ctx context.Context, repo, hostname, configText, message string) (string, error) {
	filePath := hostname + ".txt"
	url := c.baseURL + "/api/v1/repos/" + repo + "/contents/" + filePath

	// An update needs the current blob SHA; a create must omit it.
	var currentSHA string
	getResp, getBody, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if getResp.StatusCode == http.StatusOK {
		var current contentsResponse
		if err := json.Unmarshal(getBody, &current); err != nil {
			return "", fmt.Errorf("failed to parse contents response: %w", err)
		}
		currentSHA = current.SHA
	}

	payload := map[string]any{
		"content": base64.StdEncoding.EncodeToString([]byte(configText)),
		"message": message,
		"branch":  "main",
	}
	if currentSHA != "" {
		payload["sha"] = currentSHA
	}

	putResp, putBody, err := c.do(ctx, http.MethodPut, url, payload)
	if err != nil {
		return "", err
	}
	if putResp.StatusCode != http.StatusOK && putResp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("commit failed for %s in %s (status %d): %s",
			filePath, repo, putResp.StatusCode, string(putBody))
	}

	var result contentsResponse
	if err := json.Unmarshal(putBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse commit response: %w", err)
	}

	commitSHA := result.Commit.SHA
	if commitSHA == "" {
		// Some Gitea versions omit the commit object; fall back to the
		// latest commit touching the file.
		commitSHA, err = c.latestCommitSHA(ctx, repo, filePath)
		if err != nil {
			return "", err
		}
	}
	return commitSHA, nil
}

func (c *Client) latestCommitSHA(ctx context.Context, repo, filePath string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/repos/%s/commits?path=%s&limit=1", c.baseURL, repo, filePath)
	resp, body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("could not retrieve commits for %s (status %d): %s",
			filePath, resp.StatusCode, string(body))
	}

	var commits []commitEntry
	if err := json.Unmarshal(body, &commits); err != nil {
		return "", fmt.Errorf("failed to parse commits response: %w", err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for %s", filePath)
	}
	return commits[0].SHA, nil
}

// GetDiff returns the unified diff between the two most recent commits that
// touched {hostname}.txt. API problems and thin history are reported as
// human-readable messages, not errors.
func (c *Client) GetDiff(ctx context.Context, repo, hostname string) (string, error) {
	filePath := hostname + ".txt"

	url := fmt.Sprintf("%s/api/v1/repos/%s/commits?path=%s&limit=2", c.baseURL, repo, filePath)
	resp, body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Could not retrieve commits for %s: HTTP %d", filePath, resp.StatusCode), nil
	}

	var commits []commitEntry
	if err := json.Unmarshal(body, &commits); err != nil {
		return "", fmt.Errorf("failed to parse commits response: %w", err)
	}
	if len(commits) < 2 {
		return fmt.Sprintf("Only %d commit(s) found for %s — no diff available yet.", len(commits), filePath), nil
	}

	compareURL := fmt.Sprintf("%s/api/v1/repos/%s/compare/%s...%s",
		c.baseURL, repo, commits[1].SHA, commits[0].SHA)
	diffResp, diffBody, err := c.do(ctx, http.MethodGet, compareURL, nil)
	if err != nil {
		return "", err
	}
	if diffResp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Diff API returned HTTP %d", diffResp.StatusCode), nil
	}

	var compare compareResponse
	if err := json.Unmarshal(diffBody, &compare); err != nil {
		return "", fmt.Errorf("failed to parse compare response: %w", err)
	}
	if len(compare.Files) == 0 {
		return "No file changes in this diff.", nil
	}

	// Match on containment, not equality: the compare API may report the
	// path relative to a subdirectory.
	for _, file := range compare.Files {
		if strings.Contains(file.Filename, hostname) {
			if file.Patch == "" {
				return "File changed but patch is empty.", nil
			}
			return file.Patch, nil
		}
	}
	return "No changes found for this device in the diff.", nil
}
