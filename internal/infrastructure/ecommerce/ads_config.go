package ecommerce

import (
	"errors"
	"net/url"
	"strings"

	"github.com/adsync/backend/internal/infrastructure/fetch"
)

const (
	// AdsDefaultBaseURL is the ads Graph API host
	AdsDefaultBaseURL = "https://graph.facebook.com"
	// AdsDefaultAPIVersion is the versioned path segment
	AdsDefaultAPIVersion = "v19.0"
	// AdsDefaultPageLimit is the number of insight rows requested per page
	AdsDefaultPageLimit = 500
)

// Errors for ads configuration
var (
	ErrAdsConfigInvalidBaseURL = errors.New("ads: base URL must be an absolute http(s) URL")
	ErrAdsConfigInvalidVersion = errors.New("ads: API version must look like v19.0")
)

// AdsConfig holds configuration for the ads Graph REST API
type AdsConfig struct {
	// BaseURL is the API host, without trailing slash
	BaseURL string
	// APIVersion is the versioned path segment, e.g. v19.0
	APIVersion string
	// PageLimit is the number of rows requested per page
	PageLimit int
	// HeaderSafetyBuffer overrides the fetch client's flat-header headroom when positive
	HeaderSafetyBuffer float64
}

// NewAdsConfig creates an ads configuration with defaults
func NewAdsConfig() *AdsConfig {
	return &AdsConfig{
		BaseURL:    AdsDefaultBaseURL,
		APIVersion: AdsDefaultAPIVersion,
		PageLimit:  AdsDefaultPageLimit,
	}
}

// Validate validates the configuration and fills defaults
func (c *AdsConfig) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = AdsDefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrAdsConfigInvalidBaseURL
	}
	if c.APIVersion == "" {
		c.APIVersion = AdsDefaultAPIVersion
	}
	if !strings.HasPrefix(c.APIVersion, "v") {
		return ErrAdsConfigInvalidVersion
	}
	if c.PageLimit <= 0 {
		c.PageLimit = AdsDefaultPageLimit
	}
	return nil
}

func (c *AdsConfig) clientConfig(base fetch.Config) fetch.Config {
	cfg := base
	cfg.Platform = "ads"
	cfg.Endpoint = ""
	if c.HeaderSafetyBuffer > 0 {
		cfg.HeaderSafetyBuffer = c.HeaderSafetyBuffer
	}
	return cfg
}
