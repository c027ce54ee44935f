package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/rrajo-portfolio/orders-service/internal/apperr"
	"github.com/rrajo-portfolio/orders-service/internal/config"
)

// Product is the authoritative catalog record. Price and currency always
// come from here, never from the caller's request.
type Product struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

type Catalog struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker
}

func NewCatalog(cfg config.Upstream, tokens TokenSource) *Catalog {
	return &Catalog{
		baseURL: cfg.BaseURL,
		client:  newHTTPClient(cfg.ConnectTimeout, cfg.ResponseTimeout),
		tokens:  tokens,
		breaker: newBreaker("catalog", cfg),
	}
}

// FetchProduct returns the catalog record for productID. It fails with
// ErrRemoteNotFound on a 4xx response and with ErrUnavailable when the
// call cannot complete or the breaker is open.
func (c *Catalog) FetchProduct(ctx context.Context, productID uuid.UUID) (Product, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return Product{}, fmt.Errorf("client: failed to obtain token for catalog call: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchProduct(ctx, productID, token)
	})
	if err != nil {
		return Product{}, breakerErr("catalog", err)
	}
	return result.(Product), nil
}

func (c *Catalog) fetchProduct(ctx context.Context, productID uuid.UUID, token string) (Product, error) {
	url := fmt.Sprintf("%s/products/%s", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Product{}, fmt.Errorf("client: failed to build catalog request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("client: catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		log.Warn().Stringer("product_id", productID).Int("status", resp.StatusCode).Msg("client: product not found in catalog-service")
		return Product{}, fmt.Errorf("client: product %s not found: %w", productID, apperr.ErrRemoteNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return Product{}, fmt.Errorf("client: catalog-service returned status %d", resp.StatusCode)
	}

	var product Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return Product{}, fmt.Errorf("client: failed to decode catalog response: %w", err)
	}
	return product, nil
}
