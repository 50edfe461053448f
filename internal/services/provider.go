// Package services holds the external backing services the quiz engine
// depends on at runtime and reports their readiness.
package services

import (
	"context"
)

// Provider is a backing service that can report its availability
type Provider interface {
	// Type returns the service type name
	Type() string

	// HealthCheck checks if the service is available
	HealthCheck(ctx context.Context) error

	// Close releases the provider's connections
	Close() error
}

// BaseProvider provides common functionality for providers
type BaseProvider struct {
	serviceType string
}

// Type returns the service type
func (p *BaseProvider) Type() string {
	return p.serviceType
}
