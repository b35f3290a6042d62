package models

import (
	"bytes"
	"encoding/json"
)

// Category is the kind of code unit emitted by the parser.
type Category string

const (
	CategoryFunction Category = "Function"
	CategoryStruct   Category = "Struct"
	CategoryClass    Category = "Class"
	CategoryEnum     Category = "Enum"
	CategoryMacro    Category = "Macro"
)

// RelationCall is the only relation category produced today.
const RelationCall = "Call"

// SummaryFailedMarker replaces a summary the summary collaborator failed to produce.
// Downstream code treats it as an ordinary low-information summary.
const SummaryFailedMarker = "summary generation failed"

// SubtaskFailedMarker replaces a sub-task description the text-generation
// collaborator failed to produce.
const SubtaskFailedMarker = "subtask description generation failed"

// CodeEntity is one parsed code unit. Relations and CallChains are annotations
// written once by the call graph package; everything else is fixed at scan time.
type CodeEntity struct {
	ID         int            `json:"id"`
	Category   Category       `json:"category"`
	Name       string         `json:"name,omitempty"`
	FileName   string         `json:"fileName"`
	StartLine  int            `json:"startLine"`
	EndLine    int            `json:"endLine"`
	Code       string         `json:"code"`
	Summary    string         `json:"summary"`
	Relations  []CallRelation `json:"relations,omitempty"`
	CallChains []CallChain    `json:"callChains,omitempty"`
}

// IsFunction reports whether the entity takes part in the call graph.
func (e *CodeEntity) IsFunction() bool {
	return e.Category == CategoryFunction
}

// MarshalJSON always writes relations and callChains for Function entities,
// as empty arrays when there are none, and omits them for every other category.
func (e CodeEntity) MarshalJSON() ([]byte, error) {
	type plain CodeEntity
	var v any = plain(e)
	if e.IsFunction() {
		fn := struct {
			plain
			Relations  []CallRelation `json:"relations"`
			CallChains []CallChain    `json:"callChains"`
		}{plain: plain(e), Relations: e.Relations, CallChains: e.CallChains}
		if fn.Relations == nil {
			fn.Relations = []CallRelation{}
		}
		if fn.CallChains == nil {
			fn.CallChains = []CallChain{}
		}
		v = fn
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

type CallLocation struct {
	FileName  string `json:"fileName"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Offset    int    `json:"offset"`
}

// CallRelation is a directed call edge. From never equals To.
type CallRelation struct {
	Category  string       `json:"category"`
	From      int          `json:"from"`
	To        int          `json:"to"`
	SummaryTo string       `json:"summary_to"`
	Loc       CallLocation `json:"loc"`
}

// CallChain is a cycle-free path of entity ids starting at a root function.
type CallChain []int

type EmbeddingRecord struct {
	Embedding []float32   `json:"embedding"`
	MetaInfo  *CodeEntity `json:"meta_info"`
}

type RetrievalHit struct {
	Similarity float64     `json:"similarity"`
	MetaInfo   *CodeEntity `json:"meta_info"`
}

type SubtaskDescriptor struct {
	ClusterID   int    `json:"clusterId"`
	Description string `json:"description"`
}

// TrimmedHit is the reduced form of a RetrievalHit returned by re-localization.
type TrimmedHit struct {
	Similarity float64  `json:"similarity"`
	Category   Category `json:"category"`
	Code       string   `json:"code"`
}

type SubtaskResult struct {
	Subtask string       `json:"subtask"`
	Results []TrimmedHit `json:"results"`
}

// QueryRecord is what a single located query persists.
type QueryRecord struct {
	Query   string         `json:"query"`
	Results []RetrievalHit `json:"results"`
}
