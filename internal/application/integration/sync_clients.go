package integration

import (
	"fmt"

	"github.com/adsync/backend/internal/domain/integration"
	"github.com/adsync/backend/internal/infrastructure/ecommerce"
	"github.com/adsync/backend/internal/infrastructure/fetch"
)

// ClientProvider hands out a paced fetch client per tenant credential
type ClientProvider interface {
	Client(cred fetch.Credential) (*fetch.Client, error)
}

// NewClientFactory returns a fetch.Factory that applies each platform's
// pacing policy on top of base. opts are appended to every client.
func NewClientFactory(base fetch.Config, ads *ecommerce.AdsAdapter, storefront *ecommerce.StorefrontAdapter, opts ...fetch.Option) fetch.Factory {
	return func(cred fetch.Credential) (*fetch.Client, error) {
		var (
			cfg   fetch.Config
			extra []fetch.Option
		)
		switch integration.PlatformCode(cred.Platform) {
		case integration.PlatformAds:
			cfg, extra = ads.ClientConfig(base)
		case integration.PlatformStorefront:
			cfg, extra = storefront.ClientConfig(base)
			cfg.Endpoint = cred.Endpoint
		default:
			return nil, fmt.Errorf("%w: %s", integration.ErrPlatformInvalidCode, cred.Platform)
		}

		clientOpts := make([]fetch.Option, 0, len(opts)+len(extra))
		clientOpts = append(clientOpts, opts...)
		clientOpts = append(clientOpts, extra...)
		return fetch.New(cfg, cred.Token, clientOpts...)
	}
}
