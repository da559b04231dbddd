package ports

import (
	"context"

	"github.com/indexvault-go/internal/domain/lifecycle"
)

// Provisioner creates and deletes search service instances.
type Provisioner interface {
	Provision(ctx context.Context, params lifecycle.ProvisionParams) (lifecycle.ServiceInstance, error)
	Deprovision(ctx context.Context, serviceName string) error
}

// CredentialProvider hands out the admin key of a service.
type CredentialProvider interface {
	AdminKey(ctx context.Context, serviceName string) (string, error)
}
