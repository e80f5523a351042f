package fetch

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Client(t *testing.T) {
	builds := 0
	factory := func(cred Credential) (*Client, error) {
		builds++
		cfg := DefaultConfig()
		cfg.Platform = cred.Platform
		cfg.Endpoint = cred.Endpoint
		return New(cfg, cred.Token)
	}
	reg := prometheus.NewRegistry()
	r := NewRegistry(8, time.Hour, factory, reg)

	a1, err := r.Client(Credential{OrganizationID: "org-1", Platform: "ads", Token: "tok-1"})
	require.NoError(t, err)
	a2, err := r.Client(Credential{OrganizationID: "org-1", Platform: "ads", Token: "tok-1"})
	require.NoError(t, err)
	assert.Same(t, a1, a2, "same credential reuses pacing state")
	assert.Equal(t, 1, builds)

	other, err := r.Client(Credential{OrganizationID: "org-2", Platform: "ads", Token: "tok-1"})
	require.NoError(t, err)
	assert.NotSame(t, a1, other)

	refreshed, err := r.Client(Credential{OrganizationID: "org-1", Platform: "ads", Token: "tok-2"})
	require.NoError(t, err)
	assert.NotSame(t, a1, refreshed, "token change rebuilds the client")
	assert.Equal(t, 3, builds)
	assert.Equal(t, 2, r.Len())

	assert.Equal(t, 1.0, testutil.ToFloat64(r.hits))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.misses))

	r.Evict("org-1", "ads")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry(8, time.Hour, func(Credential) (*Client, error) { return nil, boom }, nil)

	_, err := r.Client(Credential{OrganizationID: "org", Platform: "ads", Token: "tok"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.Len())
}
