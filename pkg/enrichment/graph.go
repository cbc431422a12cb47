package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/copiloto/salesdash/pkg/blob"
	"github.com/copiloto/salesdash/pkg/observability"
)

// DirectoryProfile is the subset of the Microsoft Graph /me resource the
// pipeline consumes
type DirectoryProfile struct {
	DisplayName       string `json:"displayName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	JobTitle          string `json:"jobTitle"`
	Department        string `json:"department"`
	OfficeLocation    string `json:"officeLocation"`
}

// DirectoryClient queries Microsoft Graph with the signed-in user's access
// token
type DirectoryClient struct {
	baseURL    string
	httpClient *http.Client
	avatars    blob.Store
	logger     *observability.Logger
}

// NewDirectoryClient creates a directory client. avatars may be nil, in
// which case profile photos are skipped.
func NewDirectoryClient(baseURL string, avatars blob.Store, logger *observability.Logger, httpClient *http.Client) *DirectoryClient {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	return &DirectoryClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		avatars:    avatars,
		logger:     logger,
	}
}

// Profile fetches the /me resource
func (c *DirectoryClient) Profile(ctx context.Context, accessToken string) (*DirectoryProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory returned status %d: %s", resp.StatusCode, string(body))
	}

	var profile DirectoryProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode directory profile: %w", err)
	}
	return &profile, nil
}

// Photo fetches the profile photo and stores it in the avatar blob store,
// returning the stored reference. Most accounts have no photo; absence is
// normal and returns an empty reference with no error.
func (c *DirectoryClient) Photo(ctx context.Context, accessToken, subject string) (string, error) {
	if c.avatars == nil {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me/photo/$value", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build photo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("photo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithField("status", resp.StatusCode).Debug("no profile photo available")
		return "", nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	ref, err := c.avatars.Put(ctx, "avatars/"+subject, data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}
	return ref, nil
}
