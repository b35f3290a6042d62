package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ParserFactory creates language-specific parsers
type ParserFactory struct {
	parsers map[Language]LanguageParser
}

// NewParserFactory creates a new parser factory with all supported languages
func NewParserFactory() *ParserFactory {
	return &ParserFactory{
		parsers: map[Language]LanguageParser{
			LanguageC:          NewCParser(),
			LanguageCPP:        NewCPPParser(),
			LanguageGo:         NewGoParser(),
			LanguagePython:     NewPythonParser(),
			LanguageJavaScript: NewJavaScriptParser(),
			LanguageTypeScript: NewTypeScriptParser(),
		},
	}
}

// GetParser returns a parser for the given language
func (f *ParserFactory) GetParser(lang Language) (LanguageParser, error) {
	parser, exists := f.parsers[lang]
	if !exists {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	return parser, nil
}

// GetParserByFilePath returns a parser based on file extension
func (f *ParserFactory) GetParserByFilePath(filePath string) (LanguageParser, error) {
	lang := DetectLanguage(filePath)
	if lang == "" {
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}
	return f.GetParser(lang)
}

var extLanguages = map[string]Language{
	".c":   LanguageC,
	".h":   LanguageC,
	".cpp": LanguageCPP,
	".cc":  LanguageCPP,
	".cxx": LanguageCPP,
	".hpp": LanguageCPP,
	".hh":  LanguageCPP,
	".hxx": LanguageCPP,
	".go":  LanguageGo,
	".py":  LanguagePython,
	".js":  LanguageJavaScript,
	".jsx": LanguageJavaScript,
	".mjs": LanguageJavaScript,
	".cjs": LanguageJavaScript,
	".ts":  LanguageTypeScript,
	".tsx": LanguageTypeScript,
}

// DetectLanguage detects the programming language based on file extension
func DetectLanguage(filePath string) Language {
	return extLanguages[strings.ToLower(filepath.Ext(filePath))]
}

// IsSupportedFile checks if a file is supported based on its extension
func IsSupportedFile(filePath string) bool {
	return DetectLanguage(filePath) != ""
}
