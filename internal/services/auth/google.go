package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"debtster_portal/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type GoogleProvider struct {
	cfg         *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

// AuthCodeURL returns the consent URL and the state the callback must echo back.
func (g *GoogleProvider) AuthCodeURL() (url, state string, err error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	state = base64.RawURLEncoding.EncodeToString(b)
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), state, nil
}

func (g *GoogleProvider) Exchange(ctx context.Context, code string) (ProviderProfile, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return ProviderProfile{}, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return ProviderProfile{}, err
	}
	resp, err := g.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return ProviderProfile{}, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ProviderProfile{}, fmt.Errorf("userinfo: status %d", resp.StatusCode)
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ProviderProfile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Sub == "" || info.Email == "" || !info.EmailVerified {
		return ProviderProfile{}, ErrInvalidCredentials
	}

	return ProviderProfile{
		ProviderID: models.ProviderGoogle,
		AccountID:  info.Sub,
		Email:      info.Email,
		Name:       info.Name,
		Picture:    info.Picture,
	}, nil
}
