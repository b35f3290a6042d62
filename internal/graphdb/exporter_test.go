package graphdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featloc/internal/config"
	"featloc/internal/entity"
	"featloc/internal/models"
	"featloc/internal/parser"
)

type recordingWriter struct {
	stmts []Statement
	err   error
}

func (w *recordingWriter) Write(ctx context.Context, stmts []Statement) error {
	w.stmts = append(w.stmts, stmts...)
	return w.err
}

func sampleStore() *entity.Store {
	store := entity.NewStore()
	store.Add("main.c", []parser.RawEntity{
		{Category: models.CategoryFunction, StartLine: 1, EndLine: 4, Code: "int main(void)\n{\n    run();\n}"},
		{Category: models.CategoryStruct, StartLine: 6, EndLine: 8, Code: "struct cfg {\n int n;\n};"},
		{Category: models.CategoryFunction, StartLine: 10, EndLine: 12, Code: "void run(void)\n{\n}"},
	})
	store.Entities()[0].Summary = "entry point"
	store.Entities()[0].Relations = []models.CallRelation{{
		Category: models.RelationCall,
		From:     0,
		To:       2,
		Loc:      models.CallLocation{FileName: "main.c", StartLine: 3, EndLine: 3, Offset: 4},
	}}
	return store
}

func TestBuildStatements(t *testing.T) {
	stmts := BuildStatements("demo", sampleStore())

	require.Len(t, stmts, 4)
	assert.Equal(t, clearCypher, stmts[0].Cypher)
	assert.Equal(t, "demo", stmts[0].Params["project"])

	assert.Contains(t, stmts[1].Cypher, "MERGE (e:Entity:Function")
	functions := stmts[1].Params["rows"].([]map[string]any)
	require.Len(t, functions, 2)
	assert.Equal(t, int64(0), functions[0]["id"])
	assert.Equal(t, "entry point", functions[0]["summary"])
	assert.Equal(t, int64(2), functions[1]["id"])
	_, hasCode := functions[0]["code"]
	assert.False(t, hasCode)

	assert.Contains(t, stmts[2].Cypher, "MERGE (e:Entity:Struct")

	assert.Contains(t, stmts[3].Cypher, "[c:CALLS")
	calls := stmts[3].Params["rows"].([]map[string]any)
	require.Len(t, calls, 1)
	assert.Equal(t, int64(0), calls[0]["from"])
	assert.Equal(t, int64(2), calls[0]["to"])
	assert.Equal(t, int64(3), calls[0]["line"])
	assert.Equal(t, int64(4), calls[0]["offset"])
}

func TestBuildStatementsBatches(t *testing.T) {
	store := entity.NewStore()
	raws := make([]parser.RawEntity, batchSize+1)
	for i := range raws {
		raws[i] = parser.RawEntity{Category: models.CategoryMacro, StartLine: i + 1, EndLine: i + 1, Code: fmt.Sprintf("#define M%d 1", i)}
	}
	store.Add("defs.h", raws)

	stmts := BuildStatements("demo", store)
	require.Len(t, stmts, 3)
	assert.Len(t, stmts[1].Params["rows"], batchSize)
	assert.Len(t, stmts[2].Params["rows"], 1)
}

func TestBuildStatementsEmptyStore(t *testing.T) {
	stmts := BuildStatements("demo", entity.NewStore())
	require.Len(t, stmts, 1)
	assert.Equal(t, clearCypher, stmts[0].Cypher)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Macro", Label(models.CategoryMacro))
	assert.Equal(t, "", Label("Function) DETACH DELETE (x"))
}

func TestExport(t *testing.T) {
	w := &recordingWriter{}
	stats, err := NewExporter(w, nil).Export(context.Background(), "demo", sampleStore())
	require.NoError(t, err)
	assert.Equal(t, ExportStats{Entities: 3, Relations: 1}, stats)
	assert.Len(t, w.stmts, 4)
}

func TestExportWriterFailure(t *testing.T) {
	w := &recordingWriter{err: errors.New("connection refused")}
	_, err := NewExporter(w, nil).Export(context.Background(), "demo", sampleStore())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCollaborator))
	assert.True(t, strings.Contains(err.Error(), "connection refused"))
}

func TestExportIntegration(t *testing.T) {
	uri := os.Getenv("NEO4J_URI")
	if testing.Short() || uri == "" {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, config.Neo4jConfig{
		URI:      uri,
		User:     os.Getenv("NEO4J_USER"),
		Password: os.Getenv("NEO4J_PASSWORD"),
	})
	require.NoError(t, err)
	defer client.Close()

	project := "featloc-test"
	_, err = NewExporter(client, nil).Export(ctx, project, sampleStore())
	require.NoError(t, err)

	n, err := client.Count(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, client.Write(ctx, []Statement{{Cypher: clearCypher, Params: map[string]any{"project": project}}}))
}
