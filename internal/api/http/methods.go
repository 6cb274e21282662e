package http

import (
	"context"

	"github.com/GriffinCanCode/toolpad/internal/datasource"
	"github.com/GriffinCanCode/toolpad/internal/domain/app"
	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
	"github.com/GriffinCanCode/toolpad/internal/domain/release"
	"github.com/GriffinCanCode/toolpad/internal/rpc"
)

// Services are the collaborators the RPC methods are served by.
type Services struct {
	Store    *app.Store
	Data     *datasource.Service
	Releases *release.Checker // optional
}

// Methods binds every RPC method to its collaborator. Parameters are
// positional, in the order the browser client sends them.
func Methods(s Services) rpc.Definition {
	store := s.Store
	def := rpc.Definition{
		rpc.DataSourceFetchPrivate: rpc.Func2(func(ctx context.Context, dataSourceID string, query datasource.PrivateQuery) (any, error) {
			return s.Data.FetchPrivate(ctx, dataSourceID, query)
		}),
		rpc.ExecQuery: rpc.Func4(func(ctx context.Context, appID string, version app.Version, queryID string, params map[string]any) (datasource.ExecResult, error) {
			return s.Data.ExecQuery(ctx, appID, version, queryID, params)
		}),

		rpc.GetApps: rpc.Func0(func(context.Context) ([]app.App, error) {
			return store.GetApps(), nil
		}),
		rpc.GetApp: rpc.Func1(func(_ context.Context, appID string) (*app.App, error) {
			return store.GetApp(appID), nil
		}),
		rpc.CreateApp: rpc.Func2(func(_ context.Context, name string, opts app.CreateOptions) (app.App, error) {
			return store.CreateApp(name, opts)
		}),
		rpc.UpdateApp: rpc.Func2(func(_ context.Context, appID string, in app.UpdateInput) (app.App, error) {
			return store.UpdateApp(appID, in)
		}),
		rpc.DuplicateApp: rpc.Func1(func(_ context.Context, appID string) (app.App, error) {
			return store.DuplicateApp(appID)
		}),
		rpc.DeleteApp: rpc.Func1(func(_ context.Context, appID string) (any, error) {
			return nil, store.DeleteApp(appID)
		}),

		rpc.LoadDom: rpc.Func2(func(_ context.Context, appID string, version app.Version) (*appdom.Dom, error) {
			return store.LoadDom(appID, version)
		}),
		rpc.SaveDom: rpc.Func2(func(_ context.Context, appID string, dom *appdom.Dom) (any, error) {
			return nil, store.SaveDom(appID, dom)
		}),

		rpc.CreateRelease: rpc.Func2(func(_ context.Context, appID string, in app.ReleaseInput) (app.Release, error) {
			return store.CreateRelease(appID, in)
		}),
		rpc.GetReleases: rpc.Func1(func(_ context.Context, appID string) ([]app.Release, error) {
			return store.GetReleases(appID)
		}),
		rpc.GetRelease: rpc.Func2(func(_ context.Context, appID string, version int) (app.Release, error) {
			return store.GetRelease(appID, version)
		}),
		rpc.FindLastRelease: rpc.Func1(func(_ context.Context, appID string) (*app.Release, error) {
			return store.FindLastRelease(appID)
		}),

		rpc.CreateDeployment: rpc.Func2(func(_ context.Context, appID string, version int) (app.Deployment, error) {
			return store.CreateDeployment(appID, version)
		}),
		rpc.Deploy: rpc.Func2(func(_ context.Context, appID string, in app.ReleaseInput) (app.Deployment, error) {
			return store.Deploy(appID, in)
		}),
		rpc.GetDeployments: rpc.Func1(func(_ context.Context, appID string) ([]app.Deployment, error) {
			return store.GetDeployments(appID)
		}),
		rpc.GetActiveDeployments: rpc.Func0(func(context.Context) ([]app.Deployment, error) {
			return store.GetActiveDeployments(), nil
		}),
		rpc.FindActiveDeployment: rpc.Func1(func(_ context.Context, appID string) (*app.Deployment, error) {
			return store.FindActiveDeployment(appID)
		}),
	}
	if s.Releases != nil {
		def[rpc.GetLatestToolpadRelease] = rpc.Func0(s.Releases.Latest)
	}
	return def
}
