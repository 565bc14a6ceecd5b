package converter

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"benchrun/pkg/models"
)

// InlineOrigin is the origin recorded for source text passed directly.
const InlineOrigin = "inline"

// parseSource reads text as a Go test file and returns the package name plus
// its top-level benchmark functions in declaration order.
func parseSource(origin, text string) (string, []models.MethodDescriptor, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "bench_test.go", text, parser.AllErrors|parser.SkipObjectResolution)
	if err != nil {
		return "", nil, models.NewDeclarationError(origin, "", "source cannot be compiled: "+err.Error())
	}

	testingName := importName(file, "testing")
	pkg := file.Name.Name

	var funcs []models.MethodDescriptor
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || !isBenchmarkName(fn.Name.Name) {
			continue
		}
		if !isTestingBFunc(fn.Type, testingName) {
			return "", nil, models.NewDeclarationError(pkg, fn.Name.Name,
				fmt.Sprintf("has incorrect signature at %s; want func(*testing.B)", fset.Position(fn.Pos())))
		}
		funcs = append(funcs, models.MethodDescriptor{Name: fn.Name.Name, Params: []string{testingBType}})
	}
	return pkg, funcs, nil
}

// importName returns the local name of importPath in file, or "" if the file
// does not import it.
func importName(file *ast.File, importPath string) string {
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil || p != importPath {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name
		}
		return importPath
	}
	return ""
}

func isTestingBFunc(ft *ast.FuncType, testingName string) bool {
	if testingName == "" || ft.TypeParams != nil {
		return false
	}
	if ft.Results != nil && len(ft.Results.List) > 0 {
		return false
	}
	if ft.Params == nil || ft.Params.NumFields() != 1 {
		return false
	}
	star, ok := ft.Params.List[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	if testingName == "." {
		id, ok := star.X.(*ast.Ident)
		return ok && id.Name == "B"
	}
	sel, ok := star.X.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	return ok && pkg.Name == testingName && sel.Sel.Name == "B"
}
