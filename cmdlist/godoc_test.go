package cmdlist

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"
)

func TestExportedMethodsDocumented(t *testing.T) {
	for _, file := range []string{"list.go", "queue.go", "command.go"} {
		t.Run(file, func(t *testing.T) {
			f, err := parser.ParseFile(token.NewFileSet(), file, nil, parser.ParseComments)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			for _, decl := range f.Decls {
				fn, ok := decl.(*ast.FuncDecl)
				if !ok || fn.Recv == nil || !fn.Name.IsExported() {
					continue
				}
				star, ok := fn.Recv.List[0].Type.(*ast.StarExpr)
				if !ok {
					continue
				}
				recv, ok := star.X.(*ast.Ident)
				if !ok || (recv.Name != "CommandList" && recv.Name != "CommandQueue") {
					continue
				}
				if fn.Doc == nil {
					t.Errorf("%s.%s has no doc comment", recv.Name, fn.Name.Name)
				}
			}
		})
	}
}
