package ports

import (
	"context"

	"github.com/indexvault-go/internal/domain/index"
)

// ServiceGateway is the search management API of one service instance.
type ServiceGateway interface {
	// ListIndexNames returns the names of all live indexes.
	ListIndexNames(ctx context.Context) ([]string, error)
	// GetDefinition returns the full definition of an index. A missing index
	// yields an error matching index.ErrNotFound.
	GetDefinition(ctx context.Context, name string) (index.Definition, error)
	// CreateOrReplace upserts an index keyed by its name.
	CreateOrReplace(ctx context.Context, def index.Definition) error
}

// GatewayFactory builds a gateway for an endpoint and admin key.
type GatewayFactory func(endpoint, apiKey string) (ServiceGateway, error)
