package pulse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultCognitoURL is the identity provider used by Pulse accounts.
const DefaultCognitoURL = "https://cognito-idp.ap-southeast-2.amazonaws.com"

// cognitoSource exchanges a refresh token for an id token. It is wrapped in
// oauth2.ReuseTokenSource so a token is only refreshed once it expires.
type cognitoSource struct {
	ctx          context.Context
	http         *http.Client
	url          string
	clientID     string
	refreshToken string
	now          func() time.Time
}

func (s *cognitoSource) Token() (*oauth2.Token, error) {
	body, err := json.Marshal(refreshRequest{
		ClientID:       s.clientID,
		AuthFlow:       "REFRESH_TOKEN_AUTH",
		AuthParameters: authParameters{RefreshToken: s.refreshToken},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Amz-Target", "AWSCognitoIdentityProviderService.InitiateAuth")
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pulse token refresh: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pulse token refresh: status %d: %s", resp.StatusCode, data)
	}
	var res refreshResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("pulse token refresh: %w", err)
	}
	ar := res.AuthenticationResult
	if ar.IDToken == "" {
		return nil, fmt.Errorf("pulse token refresh: no id token in response")
	}
	return &oauth2.Token{
		AccessToken: ar.IDToken,
		TokenType:   "Bearer",
		Expiry:      s.now().Add(time.Duration(ar.ExpiresIn) * time.Second),
	}, nil
}
