package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
	"github.com/GriffinCanCode/toolpad/internal/fault"
)

// ExecResult is what a query execution returns to the page. A query that
// ran but failed reports Error instead of failing the call.
type ExecResult struct {
	Data  any           `json:"data"`
	Error *fault.Record `json:"error,omitempty"`
}

// PrivateQuery is an editor-only request to a data source, such as a
// preview run of a query that has not been saved yet.
type PrivateQuery struct {
	Kind   string            `json:"kind"`
	Params []json.RawMessage `json:"params"`
}

// DataSource executes the query nodes bound to it.
type DataSource interface {
	// Exec runs node with params merged over the node's defaults.
	Exec(ctx context.Context, node *appdom.Node, params map[string]any) (ExecResult, error)
	// FetchPrivate answers editor requests.
	FetchPrivate(ctx context.Context, query PrivateQuery) (any, error)
}

// UnknownError reports a data source or private query nobody handles.
type UnknownError struct {
	What string
	Name string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.What, e.Name)
}

func (e *UnknownError) Code() string { return "UNKNOWN_DATA_SOURCE" }

// Registry maps data source ids to implementations
type Registry struct {
	mu      sync.RWMutex
	sources map[string]DataSource
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]DataSource)}
}

// Register adds or replaces a data source
func (r *Registry) Register(id string, ds DataSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[id] = ds
}

// Get looks a data source up by id
func (r *Registry) Get(id string) (DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.sources[id]
	if !ok {
		return nil, &UnknownError{What: "data source", Name: id}
	}
	return ds, nil
}

// IDs lists registered data source ids in order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
