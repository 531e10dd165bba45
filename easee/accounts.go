package easee

import (
	"context"
	"encoding/json"
)

// Credentials is the token set returned by login and refresh.
type Credentials struct {
	AccessToken  string   `json:"accessToken"`
	ExpiresIn    float64  `json:"expiresIn"`
	AccessClaims []string `json:"accessClaims,omitempty"`
	TokenType    string   `json:"tokenType,omitempty"`
	RefreshToken string   `json:"refreshToken"`
}

type Accounts struct {
	api *Client
}

// Login exchanges a username and password for credentials.
func (a *Accounts) Login(ctx context.Context, username, password string) (Credentials, error) {
	body := map[string]string{"userName": username, "password": password}
	return a.credentials(ctx, "login", "/api/accounts/login", body)
}

// RefreshToken exchanges a refresh token for new credentials.
func (a *Accounts) RefreshToken(ctx context.Context, refreshToken string) (Credentials, error) {
	body := map[string]string{"refreshToken": refreshToken}
	return a.credentials(ctx, "refresh_token", "/api/accounts/refresh_token", body)
}

func (a *Accounts) credentials(ctx context.Context, operation, path string, body any) (Credentials, error) {
	raw, err := a.api.post(ctx, operation, path, body)
	if err != nil {
		return Credentials{}, err
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		// A success body without the expected shape carries no tokens
		return Credentials{}, nil
	}
	return creds, nil
}
