package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spachava753/releasepipe/internal/models"
)

// HTTPClient is the subset of *http.Client the GitHub client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// GitHubConfig configures a GitHubClient.
type GitHubConfig struct {
	BaseURL string
	// Repository is "owner/name".
	Repository string
	Token      string
}

// GitHubClient implements Registry against the GitHub Releases API.
type GitHubClient struct {
	baseURL    string
	repository string
	token      string
	httpClient HTTPClient
}

// NewGitHubClient creates a GitHub Releases client.
func NewGitHubClient(cfg GitHubConfig, httpClient HTTPClient) *GitHubClient {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubClient{
		baseURL:    baseURL,
		repository: cfg.Repository,
		token:      cfg.Token,
		httpClient: httpClient,
	}
}

type githubReleaseRequest struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

type githubRelease struct {
	ID         int64  `json:"id"`
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	UploadURL  string `json:"upload_url"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

type githubAsset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	ContentType        string `json:"content_type"`
	Size               int    `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// CreateDraftRelease creates a draft release for the tag in req.TagRef.
func (c *GitHubClient) CreateDraftRelease(ctx context.Context, req DraftRequest) (*models.ReleaseDraft, error) {
	tag := models.Revision{Ref: req.TagRef}.TagName()
	if tag == "" {
		return nil, fmt.Errorf("%q is not a tag reference", req.TagRef)
	}

	body, err := json.Marshal(githubReleaseRequest{
		TagName:    tag,
		Name:       req.Name,
		Draft:      true,
		Prerelease: req.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding release request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/releases", c.baseURL, c.repository)
	slog.Debug("creating draft release", "repository", c.repository, "tag", tag)

	var rel githubRelease
	if err := c.doRequest(ctx, http.MethodPost, endpoint, "application/json", body, http.StatusCreated, &rel); err != nil {
		return nil, fmt.Errorf("failed to create release: %w", err)
	}
	if rel.UploadURL == "" {
		return nil, fmt.Errorf("release %d has no upload url", rel.ID)
	}

	return &models.ReleaseDraft{
		ID:         strconv.FormatInt(rel.ID, 10),
		TagRef:     req.TagRef,
		Name:       rel.Name,
		UploadURL:  rel.UploadURL,
		Draft:      rel.Draft,
		Prerelease: rel.Prerelease,
	}, nil
}

// UploadAsset uploads asset to the draft's upload endpoint.
func (c *GitHubClient) UploadAsset(ctx context.Context, draft models.ReleaseDraft, asset AssetUpload) (*models.ReleaseAsset, error) {
	endpoint, err := uploadEndpoint(draft.UploadURL, asset.Name)
	if err != nil {
		return nil, err
	}

	slog.Debug("uploading release asset", "draft", draft.ID, "name", asset.Name, "size", len(asset.Data))

	var ga githubAsset
	if err := c.doRequest(ctx, http.MethodPost, endpoint, asset.ContentType, asset.Data, http.StatusCreated, &ga); err != nil {
		return nil, fmt.Errorf("failed to upload asset %s: %w", asset.Name, err)
	}

	contentType := ga.ContentType
	if contentType == "" {
		contentType = asset.ContentType
	}
	return &models.ReleaseAsset{
		Name:        ga.Name,
		Platform:    asset.Platform,
		ContentType: contentType,
		Size:        ga.Size,
		DraftID:     draft.ID,
		URL:         ga.BrowserDownloadURL,
	}, nil
}

// uploadEndpoint expands GitHub's upload_url template ("...assets{?name,label}")
// into a concrete URL for name.
func uploadEndpoint(template, name string) (string, error) {
	if template == "" {
		return "", fmt.Errorf("draft has no upload url")
	}
	base := template
	if i := strings.Index(base, "{"); i >= 0 {
		base = base[:i]
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing upload url: %w", err)
	}
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *GitHubClient) doRequest(ctx context.Context, method, endpoint, contentType string, body []byte, wantStatus int, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
