package callgraph

import (
	"strings"
	"unicode/utf8"

	"featloc/internal/entity"
	"featloc/internal/models"
)

// BuildRelations registers every function name with resolver and then writes
// the Relations of each Function entity. Calls that do not resolve, or resolve
// to the calling function itself, are dropped. Non-function entities are not
// touched. It returns the number of relations written.
func BuildRelations(store *entity.Store, resolver Resolver) int {
	functions := store.Functions()
	for _, fn := range functions {
		if name := FunctionName(fn); name != "" {
			resolver.Register(name, fn.ID)
		}
	}

	total := 0
	for _, fn := range functions {
		relations := make([]models.CallRelation, 0)
		for _, m := range callPattern.FindAllStringSubmatchIndex(fn.Code, -1) {
			name := fn.Code[m[2]:m[3]]
			target, ok := resolver.Resolve(name)
			if !ok || target == fn.ID {
				continue
			}
			summaryTo := ""
			if callee, ok := store.Get(target); ok {
				summaryTo = callee.Summary
			}
			line, offset := callSite(fn.Code, m[0])
			relations = append(relations, models.CallRelation{
				Category:  models.RelationCall,
				From:      fn.ID,
				To:        target,
				SummaryTo: summaryTo,
				Loc: models.CallLocation{
					FileName:  fn.FileName,
					StartLine: line,
					EndLine:   line,
					Offset:    offset,
				},
			})
		}
		fn.Relations = relations
		total += len(relations)
	}
	return total
}

// callSite converts a byte index into code to a 1-based line within the code
// and a character column on that line. Each line counts its terminator.
// Indexes past the end fall back to line 1, column 0.
func callSite(code string, index int) (line, offset int) {
	start := 0
	for i, text := range strings.Split(code, "\n") {
		end := start + len(text) + 1
		if index < end {
			return i + 1, utf8.RuneCountInString(code[start:index])
		}
		start = end
	}
	return 1, 0
}
