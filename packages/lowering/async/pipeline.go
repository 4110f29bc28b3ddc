package async

import (
	"sync/atomic"

	"github.com/npillmayer/schuko/tracing"
	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/config"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
	"exprfutures-go/packages/lowering/types"
)

// Phase is one step of async lowering
type Phase struct {
	Name string
	Fn   func(*LoweringJob) error
	// Optional phases run only when Enabled returns true.
	Enabled func(*config.LoweringConfig) bool
}

// phasesList is assigned in init because Normalize lowers nested async
// lambdas through Lower, which reads the list.
var phasesList []Phase

func init() {
	phasesList = []Phase{
		{Name: "normalize", Fn: Normalize},
		{Name: "ref-locals", Fn: RewriteRefLocals},
		{Name: "catch-finally", Fn: RewriteCatchFinally},
		{Name: "aliases", Fn: EliminateAliases},
		{Name: "spill", Fn: SpillStack},
		{Name: "awaits", Fn: RewriteAwaits},
		{Name: "result", Fn: PropagateResult},
		{Name: "typed-labels", Fn: RewriteTypedLabels},
		{Name: "percolate", Fn: PercolateAssignments},
		{Name: "driver", Fn: BuildDriver},
		{Name: "optimize", Fn: OptimizeBlocks, Enabled: func(c *config.LoweringConfig) bool { return c.OptimizeBlocks }},
	}
}

// Phases returns the names of the lowering phases in the order they run
func Phases() []string {
	names := make([]string, len(phasesList))
	for i, p := range phasesList {
		names[i] = p.Name
	}
	return names
}

var settings atomic.Pointer[config.LoweringConfig]

// Configure sets the configuration copied into async lambdas created
// afterwards
func Configure(cfg *config.LoweringConfig) {
	settings.Store(cfg)
}

func currentConfig() *config.LoweringConfig {
	if cfg := settings.Load(); cfg != nil {
		return cfg
	}
	return config.NewLoweringConfig()
}

// Lower runs every phase over l and returns the lambda that drives the
// state machine. A nil cfg uses the configuration of l.
func Lower(l *AsyncLambda, cfg *config.LoweringConfig) (*ir.LambdaExpr, error) {
	job, err := Run(l, cfg, len(phasesList))
	if err != nil {
		return nil, err
	}
	return job.Output, nil
}

// Run runs the first n phases over l and returns the job. It exists to
// inspect intermediate trees.
func Run(l *AsyncLambda, cfg *config.LoweringConfig, n int) (*LoweringJob, error) {
	if cfg == nil {
		cfg = l.Config
	}
	if cfg == nil {
		cfg = currentConfig()
	}
	job := newLoweringJob(l, cfg)
	for i, phase := range phasesList {
		if i >= n {
			break
		}
		if phase.Enabled != nil && !phase.Enabled(cfg) {
			tracer().Debugf("async: skipping phase %s", phase.Name)
			continue
		}
		if err := phase.Fn(job); err != nil {
			return nil, errors.Wrapf(err, "phase %s", phase.Name)
		}
		if tracer().GetTraceLevel() == tracing.LevelDebug {
			tracer().Debugf("async: after phase %s\n%s", phase.Name, job.printable())
		}
	}
	return job, nil
}

// LoweringJob holds the tree and the state machine variables shared by the
// phases lowering one async lambda
type LoweringJob struct {
	Lambda *AsyncLambda
	Config *config.LoweringConfig
	// Body is the tree being rewritten. BuildDriver moves it into Output.
	Body ir.Node
	// Hoisted holds the variables that live across suspensions. They are
	// declared by the outer lambda and captured by MoveNext.
	Hoisted []*ir.Variable

	Builder    *ir.Variable
	Machine    *ir.Variable
	State      *ir.Variable
	LocalState *ir.Variable
	// Result receives the value of the body; nil when the lambda yields
	// no value.
	Result *ir.Variable
	// Exit ends MoveNext when the machine suspends.
	Exit *ir.LabelTarget
	// Resume is the jump table run on entry to MoveNext.
	Resume []resumePoint

	Output *ir.LambdaExpr

	states int
}

// resumePoint maps a state to the label where MoveNext resumes
type resumePoint struct {
	state int
	label *ir.LabelTarget
}

func newLoweringJob(l *AsyncLambda, cfg *config.LoweringConfig) *LoweringJob {
	job := &LoweringJob{
		Lambda:     l,
		Config:     cfg,
		Body:       l.Body,
		Builder:    ir.NewVariable(runtime.MethodBuilderFor(l.ReturnType()), "builder"),
		Machine:    ir.NewVariable(runtime.StateMachineType, "stateMachine"),
		State:      ir.NewVariable(types.Int, "state"),
		LocalState: ir.NewVariable(types.Int, "localState"),
		Exit:       ir.NewLabelTarget(types.Void, "exit"),
	}
	if elem := l.ResultType(); !elem.IsVoid() {
		job.Result = ir.NewVariable(elem, "result")
	}
	return job
}

// hoist declares v in the outer lambda
func (job *LoweringJob) hoist(v ...*ir.Variable) {
	job.Hoisted = append(job.Hoisted, v...)
}

// temp creates a hoisted variable
func (job *LoweringJob) temp(t *types.Type, name string) *ir.Variable {
	v := ir.NewVariable(t, name)
	job.hoist(v)
	return v
}

// nextState allocates the state of an await site
func (job *LoweringJob) nextState() int {
	s := job.states
	job.states++
	return s
}

func (job *LoweringJob) printable() string {
	if job.Output != nil {
		return ir.Print(job.Output)
	}
	return ir.Print(job.Body)
}
