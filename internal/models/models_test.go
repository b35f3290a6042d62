package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionAnnotationsAlwaysSerialized(t *testing.T) {
	data, err := json.Marshal([]*CodeEntity{
		{ID: 0, Category: CategoryFunction, Code: "void f(void)\n{\n}"},
		{ID: 1, Category: CategoryStruct, Code: "struct s {\n int a;\n};"},
	})
	require.NoError(t, err)

	var raw []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)

	assert.JSONEq(t, `[]`, string(raw[0]["relations"]))
	assert.JSONEq(t, `[]`, string(raw[0]["callChains"]))
	assert.NotContains(t, raw[1], "relations")
	assert.NotContains(t, raw[1], "callChains")

	var back []*CodeEntity
	require.NoError(t, json.Unmarshal(data, &back))
	assert.NotNil(t, back[0].Relations)
	assert.NotNil(t, back[0].CallChains)
	assert.Nil(t, back[1].Relations)
}

func TestFunctionAnnotationsKeepValues(t *testing.T) {
	e := CodeEntity{
		ID:       2,
		Category: CategoryFunction,
		Name:     "run",
		Code:     "if (a < b) { run(); }",
		Relations: []CallRelation{{
			Category: RelationCall,
			From:     2,
			To:       5,
			Loc:      CallLocation{FileName: "a.c", StartLine: 1, EndLine: 1, Offset: 13},
		}},
		CallChains: []CallChain{{2, 5}},
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back CodeEntity
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, e, back)
	assert.Contains(t, string(data), `"name":"run"`)
}
