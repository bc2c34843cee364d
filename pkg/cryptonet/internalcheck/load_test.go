package internalcheck

import (
	"go/ast"
	"go/token"
	"go/types"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const (
	modulePath  = "github.com/prividentity/cryptonet-go"
	wrapperPath = modulePath + "/pkg/cryptonet"
	shimPath    = wrapperPath + "/shim"
	loggingPath = wrapperPath + "/logging"
	backendPath = wrapperPath + "/internal/backend"
)

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo

func load(t *testing.T, patterns ...string) []*packages.Package {
	t.Helper()
	pkgs, err := packages.Load(&packages.Config{Mode: loadMode}, patterns...)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		for _, e := range pkg.Errors {
			t.Errorf("load %s: %v", pkg.PkgPath, e)
		}
	})
	if t.Failed() {
		t.FailNow()
	}
	return pkgs
}

// methodCall is a call through a selector whose target resolved to a
// package-level object.
type methodCall struct {
	pkg  *packages.Package
	call *ast.CallExpr
	obj  types.Object
}

// calls visits every selector call in pkgs that resolves to an object.
func calls(pkgs []*packages.Package, visit func(methodCall)) {
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				sel, ok := call.Fun.(*ast.SelectorExpr)
				if !ok {
					return true
				}
				if obj := pkg.TypesInfo.Uses[sel.Sel]; obj != nil && obj.Pkg() != nil {
					visit(methodCall{pkg: pkg, call: call, obj: obj})
				}
				return true
			})
		}
	}
}

func (c methodCall) is(pkgPath string, names ...string) bool {
	if c.obj.Pkg().Path() != pkgPath {
		return false
	}
	for _, n := range names {
		if c.obj.Name() == n {
			return true
		}
	}
	return false
}

func (c methodCall) pos(n ast.Node) token.Position {
	return c.pkg.Fset.Position(n.Pos())
}

// stringArg returns argument i when it is a string literal.
func (c methodCall) stringArg(i int) (string, *ast.BasicLit, bool) {
	if i >= len(c.call.Args) {
		return "", nil, false
	}
	lit, ok := c.call.Args[i].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", nil, false
	}
	s, err := strconv.Unquote(lit.Value)
	return s, lit, err == nil
}

func report(t *testing.T, policy string, findings []string) {
	t.Helper()
	if len(findings) > 0 {
		t.Fatalf("%s:\n%s", policy, strings.Join(findings, "\n"))
	}
}

func isByteSlice(typ types.Type) bool {
	if typ == nil {
		return false
	}
	switch tt := types.Unalias(typ).(type) {
	case *types.Slice:
		return isByte(tt.Elem())
	case *types.Array:
		return isByte(tt.Elem())
	case *types.Pointer:
		return isByteSlice(tt.Elem())
	case *types.Named:
		return isByteSlice(tt.Underlying())
	}
	return false
}

func isByte(t types.Type) bool {
	basic, ok := types.Unalias(t).(*types.Basic)
	return ok && basic.Kind() == types.Byte
}

// isNamed reports whether typ, or the type it points to, is pkgPath.name.
func isNamed(typ types.Type, pkgPath, name string) bool {
	if typ == nil {
		return false
	}
	typ = types.Unalias(typ)
	if p, ok := typ.(*types.Pointer); ok {
		typ = types.Unalias(p.Elem())
	}
	n, ok := typ.(*types.Named)
	if !ok || n.Obj().Pkg() == nil {
		return false
	}
	return n.Obj().Pkg().Path() == pkgPath && n.Obj().Name() == name
}
