package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	BaseProvider
	healthErr error
	closeErr  error
	closed    bool
}

func newFake(kind string, healthErr, closeErr error) *fakeProvider {
	return &fakeProvider{BaseProvider: BaseProvider{serviceType: kind}, healthErr: healthErr, closeErr: closeErr}
}

func (p *fakeProvider) HealthCheck(ctx context.Context) error { return p.healthErr }

func (p *fakeProvider) Close() error {
	p.closed = true
	return p.closeErr
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	pg := newFake("postgres", nil, nil)
	rd := newFake("redis", errors.New("connection refused"), errors.New("close failed"))

	r.Register("redis", rd)
	r.Register("postgres", pg)

	assert.Equal(t, []string{"postgres", "redis"}, r.List())
	assert.Equal(t, "redis", r.Get("redis").Type())
	assert.Nil(t, r.Get("missing"))

	health := r.HealthCheckAll(context.Background())
	require.Len(t, health, 2)
	assert.NoError(t, health["postgres"])
	assert.EqualError(t, health["redis"], "connection refused")

	err := r.CloseAll()
	assert.ErrorContains(t, err, "close failed")
	assert.True(t, pg.closed)
	assert.True(t, rd.closed)
	assert.Empty(t, r.List())
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	r.Register("cache", newFake("redis", nil, nil))
	r.Register("cache", newFake("memcached", nil, nil))

	assert.Equal(t, "memcached", r.Get("cache").Type())
	assert.NoError(t, r.CloseAll())
}
