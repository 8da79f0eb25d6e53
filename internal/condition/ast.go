// Package condition implements the Condition Evaluator:
// a small boolean expression language over installed-plugin facts,
// parsed LL(1) and evaluated with short-circuiting, backed by a
// per-session result cache.
package condition

import (
	"errors"
	"fmt"

	"github.com/loot-core/loot/internal/version"
)

// Errors returned by Parse and Eval.
var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidRegex = errors.New("invalid regex")
	ErrIo           = errors.New("io error")
)

// ParseError names the position in the source expression and what
// the parser expected there.
type ParseError struct {
	Position int
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("condition parse error at %d: expected %s", e.Position, e.Expected)
}

// Expr is a parsed condition expression tree node.
type Expr interface {
	// String renders the expression back to its canonical literal
	// form, which doubles as the cache key.
	String() string
}

type notExpr struct{ inner Expr }

func (e *notExpr) String() string { return "not " + e.inner.String() }

type andExpr struct{ left, right Expr }

func (e *andExpr) String() string { return e.left.String() + " and " + e.right.String() }

type orExpr struct{ left, right Expr }

func (e *orExpr) String() string { return e.left.String() + " or " + e.right.String() }

type fileExpr struct{ path string }

func (e *fileExpr) String() string { return fmt.Sprintf("file(%q)", e.path) }

type readableExpr struct{ path string }

func (e *readableExpr) String() string { return fmt.Sprintf("readable(%q)", e.path) }

type activeExpr struct{ path string }

func (e *activeExpr) String() string { return fmt.Sprintf("active(%q)", e.path) }

type regexExpr struct{ pattern string }

func (e *regexExpr) String() string { return fmt.Sprintf("regex(%q)", e.pattern) }

type manyExpr struct{ pattern string }

func (e *manyExpr) String() string { return fmt.Sprintf("many(%q)", e.pattern) }

type manyActiveExpr struct{ pattern string }

func (e *manyActiveExpr) String() string { return fmt.Sprintf("many_active(%q)", e.pattern) }

type isMasterExpr struct{ path string }

func (e *isMasterExpr) String() string { return fmt.Sprintf("is_master(%q)", e.path) }

type checksumExpr struct {
	path string
	hex  string
}

func (e *checksumExpr) String() string { return fmt.Sprintf("checksum(%q, %s)", e.path, e.hex) }

type versionExpr struct {
	path    string
	target  string
	cmp     version.Comparator
	product bool
	byName  bool
}

func (e *versionExpr) String() string {
	fn := "version"
	if e.product {
		fn = "product_version"
	}
	if e.byName {
		fn = "filename_version"
	}
	return fmt.Sprintf("%s(%q, %q, %s)", fn, e.path, e.target, e.cmp)
}
