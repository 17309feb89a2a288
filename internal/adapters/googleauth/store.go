package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rahullym/GMBpro/internal/adapters/observability"
	"github.com/rahullym/GMBpro/internal/domain"
)

// Store exchanges encrypted refresh credentials for short-lived access tokens
// against the Google OAuth token endpoint.
type Store struct {
	tokenURL     string
	clientID     string
	clientSecret string
	keyHex       string
	hc           *http.Client
}

func NewStore(tokenURL, clientID, clientSecret, encryptionKeyHex string) *Store {
	return &Store{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		keyHex:       encryptionKeyHex,
		hc:           &http.Client{Timeout: 15 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type tokenError struct {
	Err  string `json:"error"`
	Desc string `json:"error_description"`
}

func (s *Store) Refresh(ctx context.Context, encCredential string) (domain.AccessToken, error) {
	refreshToken, err := Decrypt(encCredential, s.keyHex)
	if err != nil {
		// undecryptable credential can never refresh again
		return domain.AccessToken{}, fmt.Errorf("%w: %v", domain.ErrCredentialRevoked, err)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.AccessToken{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := s.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("oauth", "token", 0, time.Since(start))
		if ctx.Err() != nil {
			return domain.AccessToken{}, ctx.Err()
		}
		return domain.AccessToken{}, fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("oauth", "token", resp.StatusCode, time.Since(start))

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode == http.StatusOK {
		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return domain.AccessToken{}, fmt.Errorf("decode token response: %w", err)
		}
		return domain.AccessToken{
			Token:     tr.AccessToken,
			ExpiresAt: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		}, nil
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var te tokenError
		_ = json.Unmarshal(body, &te)
		// invalid_grant means the user revoked access or the token expired
		if te.Err == "invalid_grant" {
			return domain.AccessToken{}, domain.ErrCredentialRevoked
		}
		return domain.AccessToken{}, fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, te.Err)
	}

	return domain.AccessToken{}, &domain.ProviderError{
		Status:    resp.StatusCode,
		Retryable: true,
		Detail:    "token endpoint " + resp.Status,
	}
}

// IsValid reports whether the credential can still mint access tokens. Only a
// definitive rejection counts as invalid; transient faults stay valid so a
// flaky token endpoint never disconnects locations.
func (s *Store) IsValid(ctx context.Context, encCredential string) bool {
	_, err := s.Refresh(ctx, encCredential)
	return !errors.Is(err, domain.ErrCredentialRevoked)
}
