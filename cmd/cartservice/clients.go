package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kugelpos/transactional-core/domain/cart"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/domain/terminal"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/middleware"
	"github.com/kugelpos/transactional-core/infrastructure/state"
)

// sharedHTTPClient is the pooled client every outbound call uses; the
// pool is shared process-wide.
func sharedHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// serviceTokenFn mints short-TTL service tokens on demand.
func serviceTokenFn(secret []byte, issuer string) func() (string, error) {
	return func() (string, error) {
		return middleware.MintServiceToken(secret, issuer, 2*time.Minute)
	}
}

// terminalClient resolves terminal info from the terminal service over
// HTTP, the 50-100ms call the TTL cache in front of it exists to avoid.
type terminalClient struct {
	client  *http.Client
	baseURL string
	token   func() (string, error)
}

func (c *terminalClient) GetTerminalInfo(ctx context.Context, tenantID, storeCode string, terminalNo int) (cart.TerminalInfo, error) {
	terminalID := fmt.Sprintf("%s-%s-%d", tenantID, storeCode, terminalNo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/terminals/"+terminalID, nil)
	if err != nil {
		return cart.TerminalInfo{}, errors.System("build terminal request", err)
	}
	token, err := c.token()
	if err != nil {
		return cart.TerminalInfo{}, errors.System("mint service token", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return cart.TerminalInfo{}, errors.ExternalService("terminal-service", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return cart.TerminalInfo{}, errors.NotFound("terminal", terminalID)
	}
	if resp.StatusCode >= 300 {
		return cart.TerminalInfo{}, errors.ExternalService("terminal-service", fmt.Errorf("status %d", resp.StatusCode))
	}

	var envelope struct {
		Data struct {
			Status          string       `json:"status"`
			BusinessDate    string       `json:"business_date"`
			OpenCounter     int          `json:"open_counter"`
			BusinessCounter int          `json:"business_counter"`
			Staff           master.Staff `json:"staff"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return cart.TerminalInfo{}, errors.ExternalService("terminal-service", err)
	}
	return cart.TerminalInfo{
		TerminalID:      terminalID,
		Status:          envelope.Data.Status,
		BusinessDate:    envelope.Data.BusinessDate,
		OpenCounter:     envelope.Data.OpenCounter,
		BusinessCounter: envelope.Data.BusinessCounter,
		Staff:           envelope.Data.Staff,
	}, nil
}

// apiKeyVerifier checks a (terminal_id, key) pair against the terminal
// service, which rejects keys that do not belong to the addressed
// terminal. Successful verifications are cached as the key's digest so the
// hot cart path does not pay a remote round-trip per request.
type apiKeyVerifier struct {
	client   *http.Client
	baseURL  string
	verified *state.TTLCache[string]
}

func newAPIKeyVerifier(client *http.Client, baseURL string, backend state.PersistenceBackend) *apiKeyVerifier {
	return &apiKeyVerifier{
		client:   client,
		baseURL:  baseURL,
		verified: state.NewTTLCache[string](backend, "apikey-verified", 5*time.Minute),
	}
}

func (v *apiKeyVerifier) Verify(ctx context.Context, terminalID, apiKey string) error {
	digest := terminal.HashAPIKey(apiKey)
	if cached, ok := v.verified.Get(ctx, terminalID); ok {
		if subtle.ConstantTimeCompare([]byte(cached), []byte(digest)) == 1 {
			return nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/terminals/"+terminalID, nil)
	if err != nil {
		return errors.System("build terminal verify request", err)
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return errors.ExternalService("terminal-service", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.TerminalNotSignedIn().WithUserMessage("API key rejected by terminal service")
	}
	_ = v.verified.Set(ctx, terminalID, digest)
	return nil
}
