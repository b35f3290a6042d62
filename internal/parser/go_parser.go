package parser

import (
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"

	"featloc/internal/models"
)

// GoParser implements LanguageParser for Go using the standard go/ast.
type GoParser struct{}

// NewGoParser creates a new Go parser
func NewGoParser() *GoParser {
	return &GoParser{}
}

// Language returns the language name
func (p *GoParser) Language() string {
	return string(LanguageGo)
}

// ExtractEntities extracts function, method and struct definitions.
func (p *GoParser) ExtractEntities(filePath string, code []byte) ([]RawEntity, error) {
	fset := token.NewFileSet()
	file, err := goparser.ParseFile(fset, filePath, code, goparser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Go code: %w", err)
	}

	var entities []RawEntity
	ast.Inspect(file, func(n ast.Node) bool {
		switch decl := n.(type) {
		case *ast.FuncDecl:
			if decl.Body == nil {
				return false
			}
			e := p.span(fset, code, decl, models.CategoryFunction)
			e.Name = decl.Name.Name
			if validFunction(e, true) {
				entities = append(entities, e)
			}
			// closures are part of their enclosing function
			return false
		case *ast.TypeSpec:
			if _, ok := decl.Type.(*ast.StructType); ok {
				e := p.span(fset, code, decl, models.CategoryStruct)
				e.Name = decl.Name.Name
				entities = append(entities, e)
			}
		}
		return true
	})

	return entities, nil
}

func (p *GoParser) span(fset *token.FileSet, code []byte, n ast.Node, category models.Category) RawEntity {
	start := fset.PositionFor(n.Pos(), false).Line
	end := fset.PositionFor(n.End(), false).Line
	return RawEntity{
		Category:  category,
		StartLine: start,
		EndLine:   end,
		Code:      lineSpan(code, start, end),
	}
}
