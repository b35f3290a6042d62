package parser

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"

	"featloc/internal/models"
)

// nodeRule maps one tree-sitter node kind to an entity category.
type nodeRule struct {
	category  models.Category
	needsBody bool // skip forward declarations such as `struct foo;`
	assigned  bool // variable_declarator whose value is a function literal
}

// TreeSitterParser extracts entities from any grammar given a node rule table.
type TreeSitterParser struct {
	lang    Language
	grammar *sitter.Language
	rules   map[string]nodeRule
	braced  bool // function bodies are delimited by { }
}

var cRules = map[string]nodeRule{
	"function_definition":  {category: models.CategoryFunction, needsBody: true},
	"struct_specifier":     {category: models.CategoryStruct, needsBody: true},
	"enum_specifier":       {category: models.CategoryEnum, needsBody: true},
	"preproc_def":          {category: models.CategoryMacro},
	"preproc_function_def": {category: models.CategoryMacro},
}

func withRules(base map[string]nodeRule, extra map[string]nodeRule) map[string]nodeRule {
	out := make(map[string]nodeRule, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var cppRules = withRules(cRules, map[string]nodeRule{
	"class_specifier": {category: models.CategoryClass, needsBody: true},
})

var pythonRules = map[string]nodeRule{
	"function_definition": {category: models.CategoryFunction, needsBody: true},
	"class_definition":    {category: models.CategoryClass, needsBody: true},
}

var jsRules = map[string]nodeRule{
	"function_declaration":           {category: models.CategoryFunction, needsBody: true},
	"generator_function_declaration": {category: models.CategoryFunction, needsBody: true},
	"method_definition":              {category: models.CategoryFunction, needsBody: true},
	"class_declaration":              {category: models.CategoryClass, needsBody: true},
	"variable_declarator":            {category: models.CategoryFunction, assigned: true},
}

var tsRules = withRules(jsRules, map[string]nodeRule{
	"abstract_class_declaration": {category: models.CategoryClass, needsBody: true},
	"enum_declaration":           {category: models.CategoryEnum, needsBody: true},
})

func NewCParser() *TreeSitterParser {
	return &TreeSitterParser{lang: LanguageC, grammar: c.GetLanguage(), rules: cRules, braced: true}
}

func NewCPPParser() *TreeSitterParser {
	return &TreeSitterParser{lang: LanguageCPP, grammar: cpp.GetLanguage(), rules: cppRules, braced: true}
}

func NewPythonParser() *TreeSitterParser {
	return &TreeSitterParser{lang: LanguagePython, grammar: python.GetLanguage(), rules: pythonRules}
}

func NewJavaScriptParser() *TreeSitterParser {
	return &TreeSitterParser{lang: LanguageJavaScript, grammar: javascript.GetLanguage(), rules: jsRules, braced: true}
}

// NewTypeScriptParser uses the tsx grammar so .ts and .tsx share one parser.
func NewTypeScriptParser() *TreeSitterParser {
	return &TreeSitterParser{lang: LanguageTypeScript, grammar: tsx.GetLanguage(), rules: tsRules, braced: true}
}

// Language returns the language name
func (p *TreeSitterParser) Language() string {
	return string(p.lang)
}

// ExtractEntities walks the syntax tree in pre-order and emits every node the
// rule table matches. Nested definitions (methods inside classes) are emitted too.
func (p *TreeSitterParser) ExtractEntities(filePath string, code []byte) ([]RawEntity, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(p.grammar)

	tree, err := parser.ParseCtx(context.Background(), nil, code)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s code in %s: %w", p.lang, filePath, err)
	}
	defer tree.Close()

	var entities []RawEntity
	p.traverseNode(tree.RootNode(), code, &entities)
	return entities, nil
}

func (p *TreeSitterParser) traverseNode(node *sitter.Node, code []byte, entities *[]RawEntity) {
	if e, ok := p.match(node, code); ok {
		*entities = append(*entities, e)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		p.traverseNode(node.NamedChild(i), code, entities)
	}
}

func (p *TreeSitterParser) match(node *sitter.Node, code []byte) (RawEntity, bool) {
	rule, ok := p.rules[node.Type()]
	if !ok {
		return RawEntity{}, false
	}

	spanNode := node
	nameNode := node.ChildByFieldName("name")
	if rule.assigned {
		value := node.ChildByFieldName("value")
		if value == nil {
			return RawEntity{}, false
		}
		switch value.Type() {
		case "arrow_function", "function", "function_expression":
		default:
			return RawEntity{}, false
		}
		// `const add = (a, b) => {...}` keeps its declaration keyword
		if parent := node.Parent(); parent != nil {
			spanNode = parent
		}
	} else if rule.needsBody && node.ChildByFieldName("body") == nil {
		return RawEntity{}, false
	}

	start, end := nodeLines(spanNode)
	e := RawEntity{
		Category:  rule.category,
		StartLine: start,
		EndLine:   end,
		Code:      lineSpan(code, start, end),
	}
	if nameNode != nil {
		e.Name = nameNode.Content(code)
	}
	if e.Category == models.CategoryFunction && !validFunction(e, p.braced) {
		return RawEntity{}, false
	}
	return e, true
}

// nodeLines converts tree-sitter rows to 1-indexed lines. Nodes that swallow
// their trailing newline (preprocessor lines) end on the previous line.
func nodeLines(node *sitter.Node) (int, int) {
	start := int(node.StartPoint().Row) + 1
	endPoint := node.EndPoint()
	end := int(endPoint.Row) + 1
	if endPoint.Column == 0 && end > start {
		end--
	}
	return start, end
}
