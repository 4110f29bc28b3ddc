/*
Package async lowers async lambdas into state machines.

An AsyncLambda holds a body containing Await nodes. Lowering runs a fixed
list of phases over the body (see phasesList) and produces a plain lambda
that creates a method builder and a runtime state machine, starts it and
returns the builder's task. The body of the state machine's MoveNext action
resumes at the await site recorded in the state variable.

Awaits are forbidden inside lock bodies, catch filters and nested lambdas
that are not async themselves. NewAsyncLambda reports these cases.
*/
package async

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'exprfutures.async'.
func tracer() tracing.Trace {
	return tracing.Select("exprfutures.async")
}
