package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/ports"
)

var _ ports.ServiceGateway = (*FakeGateway)(nil)

// FakeGateway emulates the management API of one search service. Fetched
// definitions carry the OData envelope and null-valued properties the way the
// real service returns them, and CreateOrReplace rejects payloads that still
// contain nulls.
type FakeGateway struct {
	mu      sync.Mutex
	indexes map[string]index.Definition
	puts    []index.Definition

	ListErr error
	GetErr  map[string]error
	PutErr  map[string]error
}

func NewFakeGateway(defs ...index.Definition) *FakeGateway {
	g := &FakeGateway{
		indexes: make(map[string]index.Definition),
		GetErr:  make(map[string]error),
		PutErr:  make(map[string]error),
	}
	for _, def := range defs {
		g.indexes[def.Name()] = def.Clone()
	}
	return g
}

func (g *FakeGateway) ListIndexNames(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	names := make([]string, 0, len(g.indexes))
	for name := range g.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *FakeGateway) GetDefinition(ctx context.Context, name string) (index.Definition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.GetErr[name]; err != nil {
		return nil, err
	}
	def, ok := g.indexes[name]
	if !ok {
		return nil, &index.NotFoundError{Resource: "index", Name: name}
	}
	out := def.Clone()
	out[index.PropODataContext] = "https://fake.search.windows.net/$metadata#indexes/$entity"
	out[index.PropODataETag] = fmt.Sprintf("\"0x%X\"", len(g.puts)+1)
	if _, ok := out[index.PropEncryptionKey]; !ok {
		out[index.PropEncryptionKey] = nil
	}
	return out, nil
}

func (g *FakeGateway) CreateOrReplace(ctx context.Context, def index.Definition) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := def.Name()
	if err := g.PutErr[name]; err != nil {
		return err
	}
	if name == "" {
		return &index.RemoteError{Status: 400, Body: `{"error":{"message":"The index name is missing."}}`}
	}
	for key, value := range def {
		if value == nil {
			return &index.RemoteError{
				Status: 400,
				Body:   fmt.Sprintf(`{"error":{"message":"The property '%s' cannot be null."}}`, key),
			}
		}
	}
	g.indexes[name] = def.Clone()
	g.puts = append(g.puts, def.Clone())
	return nil
}

// Index returns the stored definition, without the OData envelope.
func (g *FakeGateway) Index(name string) (index.Definition, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	def, ok := g.indexes[name]
	if !ok {
		return nil, false
	}
	return def.Clone(), true
}

// Remove deletes an index as if it had been dropped out of band.
func (g *FakeGateway) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.indexes, name)
}

// Puts returns every payload accepted by CreateOrReplace.
func (g *FakeGateway) Puts() []index.Definition {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]index.Definition(nil), g.puts...)
}
