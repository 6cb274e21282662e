package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/toolpad/internal/domain/app"
	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
)

type echoSource struct {
	node   *appdom.Node
	params map[string]any
}

func (e *echoSource) Exec(_ context.Context, node *appdom.Node, params map[string]any) (ExecResult, error) {
	e.node, e.params = node, params
	return ExecResult{Data: params}, nil
}

func (e *echoSource) FetchPrivate(_ context.Context, q PrivateQuery) (any, error) {
	return q.Kind, nil
}

func seeded(t *testing.T) (*app.Store, string, string) {
	t.Helper()
	dom := appdom.New("demo")
	q, err := dom.Add(dom.Root, "queries", &appdom.Node{
		Type:       appdom.TypeQuery,
		Name:       "q",
		DataSource: "echo",
		Params:     map[string]any{"a": "default", "b": "default"},
	})
	require.NoError(t, err)

	store := app.NewStore(nil)
	created, err := store.CreateApp("demo", app.CreateOptions{Dom: dom})
	require.NoError(t, err)
	return store, created.ID, q.ID
}

func TestExecQueryMergesParams(t *testing.T) {
	store, appID, queryID := seeded(t)
	echo := &echoSource{}
	reg := NewRegistry()
	reg.Register("echo", echo)

	svc := NewService(store, reg)
	res, err := svc.ExecQuery(context.Background(), appID, app.Preview, queryID, map[string]any{"b": "override"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "default", "b": "override"}, res.Data)
	assert.Equal(t, queryID, echo.node.ID)
}

func TestExecQueryFailures(t *testing.T) {
	store, appID, queryID := seeded(t)
	svc := NewService(store, NewRegistry())

	_, err := svc.ExecQuery(context.Background(), appID, app.Preview, queryID, nil)
	var unknown *UnknownError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "echo", unknown.Name)

	_, err = svc.ExecQuery(context.Background(), appID, app.Preview, "missing", nil)
	assert.ErrorIs(t, err, appdom.ErrNodeNotFound)

	_, err = svc.ExecQuery(context.Background(), "nope", app.Preview, queryID, nil)
	assert.ErrorIs(t, err, app.ErrAppNotFound)

	_, err = svc.ExecQuery(context.Background(), appID, app.Version{Number: 3}, queryID, nil)
	assert.ErrorIs(t, err, app.ErrReleaseNotFound)
}

func TestFetchPrivate(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", &echoSource{})
	svc := NewService(app.NewStore(nil), reg)

	out, err := svc.FetchPrivate(context.Background(), "echo", PrivateQuery{Kind: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ping", out)

	_, err = svc.FetchPrivate(context.Background(), "other", PrivateQuery{})
	assert.Error(t, err)
	assert.Equal(t, []string{"echo"}, reg.IDs())
}
