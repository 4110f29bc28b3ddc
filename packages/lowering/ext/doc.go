/*
Package ext provides expression nodes for statements and operators that
the base IR in package ir does not have: structured loops, switch
statements and switch expressions, pattern matching, using and lock,
index and range access, tuples, null-conditional access, compound
assignment, with-expressions, event accessors and interpolated strings.

Every node is created by a factory that validates its operands and returns
an error when they are malformed. Nodes are immutable; Update returns the
receiver when no child changed. Reduce lowers a node into base-IR nodes,
possibly containing other extension nodes that reduce in turn.
*/
package ext

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'exprfutures.ext'.
func tracer() tracing.Trace {
	return tracing.Select("exprfutures.ext")
}
