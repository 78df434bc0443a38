package master

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kugelpos/transactional-core/infrastructure/errors"
)

// HTTPStore is the production Store: it reads master data from the
// master-data service's HTTP surface. Master-data CRUD is owned by an
// external collaborator; this core only consumes it. Responses arrive in
// the shared response envelope with the row under `data`.
type HTTPStore struct {
	client  *http.Client
	baseURL string
	token   func() (string, error)
}

// NewHTTPStore builds a store reading from baseURL. token, when non-nil,
// supplies a service-to-service bearer token per request.
func NewHTTPStore(client *http.Client, baseURL string, token func() (string, error)) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{client: client, baseURL: baseURL, token: token}
}

func (s *HTTPStore) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return errors.System("build master-data request", err)
	}
	if s.token != nil {
		token, err := s.token()
		if err != nil {
			return errors.System("mint master-data token", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.ExternalService("master-data", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.NotFound("master data", path)
	}
	if resp.StatusCode >= 300 {
		return errors.ExternalService("master-data", fmt.Errorf("status %d for %s", resp.StatusCode, path))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return errors.ExternalService("master-data", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return errors.ExternalService("master-data", err)
	}
	return nil
}

func (s *HTTPStore) GetItem(ctx context.Context, tenantID, itemCode string) (*Item, error) {
	var item Item
	if err := s.get(ctx, fmt.Sprintf("/tenants/%s/items/%s", tenantID, itemCode), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *HTTPStore) GetTax(ctx context.Context, tenantID, taxCode string) (*Tax, error) {
	var tax Tax
	if err := s.get(ctx, fmt.Sprintf("/tenants/%s/taxes/%s", tenantID, taxCode), &tax); err != nil {
		return nil, err
	}
	return &tax, nil
}

func (s *HTTPStore) GetPaymentMethod(ctx context.Context, tenantID, paymentCode string) (*PaymentMethod, error) {
	var pm PaymentMethod
	if err := s.get(ctx, fmt.Sprintf("/tenants/%s/payments/%s", tenantID, paymentCode), &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

func (s *HTTPStore) ListTaxes(ctx context.Context, tenantID string) ([]Tax, error) {
	var taxes []Tax
	if err := s.get(ctx, fmt.Sprintf("/tenants/%s/taxes", tenantID), &taxes); err != nil {
		return nil, err
	}
	return taxes, nil
}
