// Package expr defines the query-expression tree: a closed set of node
// types, their static types, a checker, a formatter and structural
// equality.
//
// Trees are immutable value graphs. Every pass (rewrite, eval, querysql)
// dispatches on the concrete node type with a type switch; Deref lets
// callers hand in pointer forms as well.
package expr
