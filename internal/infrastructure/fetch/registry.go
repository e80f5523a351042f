package fetch

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Credential identifies the tenant connection a client is built for
type Credential struct {
	OrganizationID string
	Platform       string
	Token          string
	// Endpoint is the GraphQL endpoint, empty for REST-only platforms
	Endpoint string
}

func (c Credential) key() string {
	return c.Platform + ":" + c.OrganizationID
}

// Factory builds a client for one credential
type Factory func(cred Credential) (*Client, error)

type registryEntry struct {
	cred   Credential
	client *Client
}

// Registry caches one Client per credential so pacing state survives across
// jobs for the same organization and platform. Entries expire after ttl; a
// changed token or endpoint replaces the cached client.
type Registry struct {
	mu      sync.Mutex
	cache   *expirable.LRU[string, *registryEntry]
	factory Factory
	hits    prometheus.Counter
	misses  prometheus.Counter
}

// NewRegistry creates a registry. reg may be nil to skip metric registration.
func NewRegistry(size int, ttl time.Duration, factory Factory, reg prometheus.Registerer) *Registry {
	if size <= 0 {
		size = 256
	}
	factoryMetrics := promauto.With(reg)
	return &Registry{
		cache:   expirable.NewLRU[string, *registryEntry](size, nil, ttl),
		factory: factory,
		hits: factoryMetrics.NewCounter(prometheus.CounterOpts{
			Name: "adsync_fetch_client_cache_hits_total",
			Help: "Fetch client registry lookups served from cache.",
		}),
		misses: factoryMetrics.NewCounter(prometheus.CounterOpts{
			Name: "adsync_fetch_client_cache_misses_total",
			Help: "Fetch client registry lookups that built a new client.",
		}),
	}
}

// Client returns the cached client for the credential's (organization,
// platform), building a new one on a miss or when the credential changed.
func (r *Registry) Client(cred Credential) (*Client, error) {
	key := cred.key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.cache.Get(key); ok && entry.cred == cred {
		r.hits.Inc()
		return entry.client, nil
	}
	r.misses.Inc()

	client, err := r.factory(cred)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, &registryEntry{cred: cred, client: client})
	return client, nil
}

// Evict drops the cached client for (organization, platform)
func (r *Registry) Evict(organizationID, platform string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(Credential{OrganizationID: organizationID, Platform: platform}.key())
}

// Len returns the number of cached clients
func (r *Registry) Len() int {
	return r.cache.Len()
}
