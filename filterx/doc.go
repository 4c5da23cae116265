// Package filterx is the evaluation runtime for filter expressions.
//
// A pipeline worker owns a Thread.  For every message it initialises a
// root EvalContext, and each filter stage the message passes nests
// another EvalContext in that lineage:
//
//	var root filterx.EvalContext
//	root.Init(thread, nil)
//	defer root.Deinit()
//
//	var c filterx.EvalContext
//	c.Init(nil, &root)
//	switch filterx.Exec(&c, expr, msg) {
//	case filterx.Success:
//	...
//	}
//
// Variables live in a copy-on-write Scope shared by the lineage.
// Message-tied variables ($NAME) are written back into the message by
// SyncMessage; floating ones are dropped with the scope.
//
// Objects are reference counted.  Containers that may end up in a
// cycle are kept alive by the lineage's weak reference registry, which
// only the root context releases.
package filterx

//go:generate mockgen -destination=mocks/mock_expr.go -package=mocks -source=expr.go Expr
//go:generate mockgen -destination=mocks/mock_object.go -package=mocks -source=object.go Object
