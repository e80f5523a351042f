// Package ecommerce adapts the storefront and ads platform APIs onto the
// throttle-aware fetch client: endpoints, queries, client policy and payload
// decoding. Normalization lives in the integration domain.
package ecommerce

import (
	"errors"
	"strings"

	"github.com/adsync/backend/internal/infrastructure/fetch"
)

const (
	// StorefrontDefaultAPIVersion is the dated Admin API version queried
	StorefrontDefaultAPIVersion = "2024-07"
	// StorefrontDefaultEndpointTemplate is formatted with shop domain and API version
	StorefrontDefaultEndpointTemplate = "https://%s/admin/api/%s/graphql.json"
	// StorefrontDefaultTokenHeader carries the raw access token
	StorefrontDefaultTokenHeader = "X-Access-Token"
	// StorefrontMaxPageSize is the largest connection page the API serves
	StorefrontMaxPageSize = 250
)

// Errors for storefront configuration
var (
	ErrStorefrontConfigInvalidTemplate = errors.New("storefront: endpoint template must contain two %s verbs")
	ErrStorefrontConfigInvalidPageSize = errors.New("storefront: page size must be between 1 and 250")
)

// StorefrontConfig holds configuration for the storefront GraphQL Admin API
type StorefrontConfig struct {
	// APIVersion is the dated API version, e.g. 2024-07
	APIVersion string
	// EndpointTemplate builds the GraphQL URL from shop domain and API version
	EndpointTemplate string
	// AccessTokenHeader is the header the token is sent in, without prefix
	AccessTokenHeader string
	// PageSize is the number of orders requested per page
	PageSize int
	// SafetyBuffer overrides the fetch client's cost headroom when positive
	SafetyBuffer float64
}

// NewStorefrontConfig creates a storefront configuration with defaults
func NewStorefrontConfig() *StorefrontConfig {
	return &StorefrontConfig{
		APIVersion:        StorefrontDefaultAPIVersion,
		EndpointTemplate:  StorefrontDefaultEndpointTemplate,
		AccessTokenHeader: StorefrontDefaultTokenHeader,
		PageSize:          100,
	}
}

// Validate validates the configuration and fills defaults
func (c *StorefrontConfig) Validate() error {
	if c.APIVersion == "" {
		c.APIVersion = StorefrontDefaultAPIVersion
	}
	if c.EndpointTemplate == "" {
		c.EndpointTemplate = StorefrontDefaultEndpointTemplate
	}
	if strings.Count(c.EndpointTemplate, "%s") != 2 {
		return ErrStorefrontConfigInvalidTemplate
	}
	if c.AccessTokenHeader == "" {
		c.AccessTokenHeader = StorefrontDefaultTokenHeader
	}
	if c.PageSize == 0 {
		c.PageSize = 100
	}
	if c.PageSize < 0 || c.PageSize > StorefrontMaxPageSize {
		return ErrStorefrontConfigInvalidPageSize
	}
	return nil
}

// clientConfig derives the fetch policy for storefront clients
func (c *StorefrontConfig) clientConfig(base fetch.Config) fetch.Config {
	cfg := base
	cfg.Platform = "storefront"
	if c.SafetyBuffer > 0 {
		cfg.SafetyBuffer = c.SafetyBuffer
	}
	return cfg
}
