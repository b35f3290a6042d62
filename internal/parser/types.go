package parser

import (
	"strings"

	"featloc/internal/models"
)

// RawEntity is one code unit as emitted by a language parser. Ids and file
// names are assigned later by the entity store.
type RawEntity struct {
	Category  models.Category
	Name      string // declared name when the grammar exposes one, else ""
	StartLine int    // 1-indexed
	EndLine   int    // 1-indexed, inclusive
	Code      string // full lines StartLine..EndLine
}

// LanguageParser defines the interface for language-specific parsers
type LanguageParser interface {
	// ExtractEntities parses source code and returns its definitions in source order
	ExtractEntities(filePath string, code []byte) ([]RawEntity, error)

	// Language returns the language name
	Language() string
}

// Language represents supported programming languages
type Language string

const (
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
)

// lineSpan returns lines start..end (1-indexed, inclusive) of code verbatim.
func lineSpan(code []byte, start, end int) string {
	lines := strings.Split(string(code), "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// validFunction drops declarations, one-liners and bodies without braces.
// Languages without brace bodies pass braced=false.
func validFunction(e RawEntity, braced bool) bool {
	if e.StartLine >= e.EndLine {
		return false
	}
	if braced && (!strings.Contains(e.Code, "{") || !strings.Contains(e.Code, "}")) {
		return false
	}
	return true
}
