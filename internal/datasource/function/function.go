package function

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/datasource"
	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
	"github.com/GriffinCanCode/toolpad/internal/fault"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/toolpad/internal/sandbox"
)

// ID is the data source id query nodes use to select this data source.
const ID = "function"

const debugExec = "debugExec"

var ErrNoModule = errors.New("function query has no module source")

// Runner executes sandboxed modules; *sandbox.Host implements it.
type Runner interface {
	Run(ctx context.Context, in sandbox.Invocation) (*sandbox.Result, error)
}

// DebugResult is the editor preview of a run: its value or error together
// with everything the function logged.
type DebugResult struct {
	Data     any                `json:"data"`
	Error    *fault.Record      `json:"error,omitempty"`
	Logs     []sandbox.LogEntry `json:"logs"`
	Duration float64            `json:"duration"` // milliseconds
}

// DataSource runs a query's module in the sandbox, passing the query
// parameters as the single argument.
type DataSource struct {
	runner Runner
	tracer *tracing.Tracer
	logger *zap.Logger
}

// New creates the function data source. tracer may be nil.
func New(runner Runner, tracer *tracing.Tracer, logger *zap.Logger) *DataSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataSource{runner: runner, tracer: tracer, logger: logger}
}

// Exec runs node.Query["module"].
func (d *DataSource) Exec(ctx context.Context, node *appdom.Node, params map[string]any) (datasource.ExecResult, error) {
	module, _ := node.Query["module"].(string)
	if module == "" {
		return datasource.ExecResult{}, ErrNoModule
	}

	res, err := d.run(ctx, node.Name+".js", module, params)
	if res == nil {
		return datasource.ExecResult{}, err
	}
	if err != nil {
		rec := fault.Normalize(err)
		return datasource.ExecResult{Error: &rec}, nil
	}
	return datasource.ExecResult{Data: res.Value}, nil
}

// FetchPrivate serves "debugExec" with params [module, params].
func (d *DataSource) FetchPrivate(ctx context.Context, q datasource.PrivateQuery) (any, error) {
	if q.Kind != debugExec {
		return nil, &datasource.UnknownError{What: "function query", Name: q.Kind}
	}

	var (
		module string
		params map[string]any
	)
	if len(q.Params) > 0 {
		if err := decode(q.Params[0], &module); err != nil {
			return nil, err
		}
	}
	if len(q.Params) > 1 {
		if err := decode(q.Params[1], &params); err != nil {
			return nil, err
		}
	}
	if module == "" {
		return nil, ErrNoModule
	}

	res, err := d.run(ctx, "preview.js", module, params)
	if res == nil {
		return nil, err
	}
	out := DebugResult{
		Logs:     res.Console,
		Duration: float64(res.Duration) / float64(time.Millisecond),
	}
	if err != nil {
		rec := fault.Normalize(err)
		out.Error = &rec
	} else {
		out.Data = res.Value
	}
	return out, nil
}

func (d *DataSource) run(ctx context.Context, name, module string, params map[string]any) (*sandbox.Result, error) {
	if params == nil {
		params = map[string]any{}
	}

	span, ctx := d.tracer.Start(ctx, "function.exec", zap.String("module", name))
	defer span.End()

	res, err := d.runner.Run(ctx, sandbox.Invocation{
		Name:   name,
		Source: module,
		Args:   []any{params},
	})
	if res != nil {
		span.Annotate(zap.String("invocation_id", res.InvocationID))
	}
	span.Fail(err)
	if err != nil {
		d.logger.Debug("Function query failed", zap.String("module", name), zap.Error(err))
	}
	return res, err
}
