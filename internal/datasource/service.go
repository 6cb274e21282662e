package datasource

import (
	"context"
	"maps"

	"github.com/GriffinCanCode/toolpad/internal/domain/app"
	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
)

// DomLoader is the part of the app store query execution needs.
type DomLoader interface {
	LoadDom(appID string, version app.Version) (*appdom.Dom, error)
}

// Service resolves query nodes from stored DOMs and runs them.
type Service struct {
	doms    DomLoader
	sources *Registry
}

func NewService(doms DomLoader, sources *Registry) *Service {
	return &Service{doms: doms, sources: sources}
}

// ExecQuery runs query queryID of the given app version. params override
// the defaults stored on the node.
func (s *Service) ExecQuery(ctx context.Context, appID string, version app.Version, queryID string, params map[string]any) (ExecResult, error) {
	dom, err := s.doms.LoadDom(appID, version)
	if err != nil {
		return ExecResult{}, err
	}
	node, err := dom.QueryNode(queryID)
	if err != nil {
		return ExecResult{}, err
	}
	ds, err := s.sources.Get(node.DataSource)
	if err != nil {
		return ExecResult{}, err
	}

	merged := make(map[string]any, len(node.Params)+len(params))
	maps.Copy(merged, node.Params)
	maps.Copy(merged, params)
	return ds.Exec(ctx, node, merged)
}

// FetchPrivate forwards an editor request to the named data source.
func (s *Service) FetchPrivate(ctx context.Context, dataSourceID string, query PrivateQuery) (any, error) {
	ds, err := s.sources.Get(dataSourceID)
	if err != nil {
		return nil, err
	}
	return ds.FetchPrivate(ctx, query)
}
