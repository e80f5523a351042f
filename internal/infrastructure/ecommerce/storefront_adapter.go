package ecommerce

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/fetch"
)

// shopDomainPattern accepts host names with an optional port
var shopDomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9.-]*[a-z0-9])?(:[0-9]{1,5})?$`)

// StorefrontAdapter talks to the storefront GraphQL Admin API
type StorefrontAdapter struct {
	config *StorefrontConfig
}

// NewStorefrontAdapter creates a storefront adapter with the given configuration
func NewStorefrontAdapter(config *StorefrontConfig) (*StorefrontAdapter, error) {
	if config == nil {
		config = NewStorefrontConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &StorefrontAdapter{config: config}, nil
}

// PlatformCode returns the platform code this adapter handles
func (a *StorefrontAdapter) PlatformCode() integration.PlatformCode {
	return integration.PlatformStorefront
}

// ClientConfig derives the fetch policy and client options for storefront credentials
func (a *StorefrontAdapter) ClientConfig(base fetch.Config) (fetch.Config, []fetch.Option) {
	return a.config.clientConfig(base), []fetch.Option{
		fetch.WithAuthHeader(a.config.AccessTokenHeader, ""),
	}
}

// Endpoint returns the GraphQL endpoint of the connection's shop
func (a *StorefrontAdapter) Endpoint(conn *integration.PlatformConnection) (string, error) {
	if conn == nil {
		return "", integration.ErrPlatformNotConnected
	}
	if conn.ShopDomain == "" {
		return "", integration.ErrPlatformMissingShop
	}
	if !shopDomainPattern.MatchString(conn.ShopDomain) {
		return "", &fetch.ValidationError{Field: "shopDomain", Message: fmt.Sprintf("%q is not a host name", conn.ShopDomain)}
	}
	return fmt.Sprintf(a.config.EndpointTemplate, conn.ShopDomain, a.config.APIVersion), nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrdersPager pages through orders updated within the inclusive date range
func (a *StorefrontAdapter) OrdersPager(client *fetch.Client, r integration.DateRange) (*fetch.Pager, error) {
	filter, err := updatedWithin(r)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{
		"first": a.config.PageSize,
		"query": filter,
	}
	return client.PaginateConnection(storefrontOrdersQuery, vars, "orders"), nil
}

// updatedWithin renders the order search filter for [start 00:00, end+1 00:00) UTC
func updatedWithin(r integration.DateRange) (string, error) {
	start, end, err := r.Bounds()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("updated_at:>='%s' AND updated_at:<'%s'",
		start.Format(time.RFC3339), end.AddDate(0, 0, 1).Format(time.RFC3339)), nil
}

// DecodeOrders decodes order nodes. Nodes that do not decode are counted and skipped.
func (a *StorefrontAdapter) DecodeOrders(items []json.RawMessage) ([]integration.RawOrder, int) {
	orders := make([]integration.RawOrder, 0, len(items))
	skipped := 0
	for _, item := range items {
		var o integration.RawOrder
		if err := json.Unmarshal(item, &o); err != nil || o.ID == "" {
			skipped++
			continue
		}
		orders = append(orders, o)
	}
	return orders, skipped
}
