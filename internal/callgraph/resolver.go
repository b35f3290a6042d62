// Package callgraph derives call relations between function entities and
// enumerates bounded call chains from the graph roots.
package callgraph

import (
	"regexp"

	"featloc/internal/models"
)

var (
	// identifier directly before the first parameter list of a declarator
	declNamePattern = regexp.MustCompile(`[\w*\s]+\b(\w+)\s*\(`)
	callPattern     = regexp.MustCompile(`\b([a-zA-Z_]\w*)\s*\(`)
	identPattern    = regexp.MustCompile(`^[a-zA-Z_$][\w$]*$`)
)

// keywords that precede a parameter list without naming a function
var reserved = map[string]bool{
	"function": true,
	"async":    true,
	"if":       true,
	"for":      true,
	"while":    true,
	"switch":   true,
	"return":   true,
	"sizeof":   true,
	"catch":    true,
}

// Resolver maps call-site names to entity ids. Implementations decide how
// collisions and scoping are handled; the graph and chain logic only see ids.
type Resolver interface {
	Register(name string, id int)
	Resolve(name string) (int, bool)
}

// NameResolver is a global name table. A later Register for an existing name
// replaces the earlier id, so duplicate names resolve to the last function scanned.
type NameResolver struct {
	ids map[string]int
}

func NewNameResolver() *NameResolver {
	return &NameResolver{ids: make(map[string]int)}
}

func (r *NameResolver) Register(name string, id int) {
	r.ids[name] = id
}

func (r *NameResolver) Resolve(name string) (int, bool) {
	id, ok := r.ids[name]
	return id, ok
}

func (r *NameResolver) Len() int {
	return len(r.ids)
}

// ExtractFunctionName returns the declared name of a function from its code,
// or "" when no declarator is found.
func ExtractFunctionName(code string) string {
	m := declNamePattern.FindStringSubmatch(code)
	if m == nil || reserved[m[1]] {
		return ""
	}
	return m[1]
}

// FunctionName is the name fn is registered under: the name the parser
// recorded, or the declarator found in its code.
func FunctionName(fn *models.CodeEntity) string {
	if fn.Name != "" {
		if identPattern.MatchString(fn.Name) && !reserved[fn.Name] {
			return fn.Name
		}
		return ""
	}
	return ExtractFunctionName(fn.Code)
}
