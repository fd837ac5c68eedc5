package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tmcfarlane/gatehouse/internal/auth"
	"github.com/tmcfarlane/gatehouse/internal/db"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const githubAPIBaseURL = "https://api.github.com"

// GitHubConfig holds the GitHub OAuth client settings.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// APIBaseURL and Endpoint override GitHub's URLs for tests.
	APIBaseURL string
	Endpoint   oauth2.Endpoint
}

// GitHub authenticates users against GitHub. GitHub is plain OAuth2
// without OIDC, so the profile comes from the REST API; users who hide
// their email on the profile are looked up via the emails endpoint.
type GitHub struct {
	config  oauth2.Config
	apiBase string
}

// NewGitHub builds the GitHub flow.
func NewGitHub(cfg GitHubConfig) *GitHub {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = endpoints.GitHub
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = githubAPIBaseURL
	}

	return &GitHub{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"user:email"},
		},
		apiBase: apiBase,
	}
}

// Name returns the provider kind.
func (g *GitHub) Name() db.Provider {
	return db.ProviderGitHub
}

// AuthCodeURL returns GitHub's authorization URL.
func (g *GitHub) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// githubProfile is the subset of the /user response we rely on.
type githubProfile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// githubEmail is one entry of the /user/emails response.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange trades the code for a token and fetches the user profile.
func (g *GitHub) Exchange(ctx context.Context, code string) (auth.Assertion, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return auth.Assertion{}, fmt.Errorf("github: failed to exchange code: %w", err)
	}

	client := g.config.Client(ctx, token)

	var profile githubProfile
	if err := g.getJSON(ctx, client, "/user", &profile); err != nil {
		return auth.Assertion{}, fmt.Errorf("github: failed to fetch profile: %w", err)
	}

	email := profile.Email
	if email == "" {
		email, err = g.primaryEmail(ctx, client)
		if err != nil {
			return auth.Assertion{}, err
		}
	}
	if email == "" {
		return auth.Assertion{}, auth.ErrMissingEmail
	}

	return auth.Assertion{
		Provider:     db.ProviderGitHub,
		SubjectID:    strconv.FormatInt(profile.ID, 10),
		Email:        email,
		DisplayName:  profile.Name,
		Username:     profile.Login,
		Avatar:       profile.AvatarURL,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// primaryEmail fetches the user's email list and picks the primary
// verified address, falling back to any verified one.
func (g *GitHub) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []githubEmail
	if err := g.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return "", fmt.Errorf("github: failed to fetch emails: %w", err)
	}

	var fallback string
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email, nil
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback, nil
}

func (g *GitHub) getJSON(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Flow = (*GitHub)(nil)
