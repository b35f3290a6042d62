package graphdb

import (
	"context"
	"fmt"
	"log/slog"

	"featloc/internal/entity"
	"featloc/internal/logging"
	"featloc/internal/models"
)

const batchSize = 500

const (
	clearCypher = `MATCH (e:Entity {project: $project}) DETACH DELETE e`
	countCypher = `MATCH (e:Entity {project: $project}) RETURN count(e) AS n`

	entityCypher = `
		UNWIND $rows AS row
		MERGE (e:Entity:%s {project: $project, id: row.id})
		SET e.category = row.category,
		    e.name = row.name,
		    e.fileName = row.fileName,
		    e.startLine = row.startLine,
		    e.endLine = row.endLine,
		    e.summary = row.summary`

	callCypher = `
		UNWIND $rows AS row
		MATCH (a:Entity {project: $project, id: row.from})
		MATCH (b:Entity {project: $project, id: row.to})
		MERGE (a)-[c:CALLS {line: row.line, offset: row.offset}]->(b)
		SET c.fileName = row.fileName`
)

// Writer executes statements atomically.
type Writer interface {
	Write(ctx context.Context, stmts []Statement) error
}

type Exporter struct {
	writer Writer
	logger *slog.Logger
}

// ExportStats reports what one export wrote.
type ExportStats struct {
	Entities  int
	Relations int
}

func NewExporter(w Writer, logger *slog.Logger) *Exporter {
	return &Exporter{writer: w, logger: logging.OrDiscard(logger)}
}

// Export replaces the graph of project with the entities and call relations
// in store. Nodes carry one extra label per category; code bodies stay out of
// the graph.
func (x *Exporter) Export(ctx context.Context, project string, store *entity.Store) (ExportStats, error) {
	stmts := BuildStatements(project, store)

	stats := ExportStats{Entities: store.Len()}
	for _, e := range store.Entities() {
		stats.Relations += len(e.Relations)
	}

	if err := x.writer.Write(ctx, stmts); err != nil {
		return ExportStats{}, fmt.Errorf("%w: neo4j export: %v", models.ErrCollaborator, err)
	}

	x.logger.Info("graph exported",
		"project", project,
		"entities", stats.Entities,
		"relations", stats.Relations,
		"statements", len(stmts),
	)
	return stats, nil
}

// BuildStatements renders the clear, node and edge statements for one export.
// Node statements come before edge statements so every MATCH finds its ends.
func BuildStatements(project string, store *entity.Store) []Statement {
	stmts := []Statement{{Cypher: clearCypher, Params: map[string]any{"project": project}}}

	byCategory := make(map[models.Category][]map[string]any)
	var order []models.Category
	var calls []map[string]any
	for _, e := range store.Entities() {
		if _, seen := byCategory[e.Category]; !seen {
			order = append(order, e.Category)
		}
		byCategory[e.Category] = append(byCategory[e.Category], entityRow(e))
		for _, rel := range e.Relations {
			calls = append(calls, callRow(rel))
		}
	}

	for _, category := range order {
		label := Label(category)
		if label == "" {
			continue
		}
		cypher := fmt.Sprintf(entityCypher, label)
		for _, rows := range batches(byCategory[category]) {
			stmts = append(stmts, Statement{Cypher: cypher, Params: map[string]any{"project": project, "rows": rows}})
		}
	}
	for _, rows := range batches(calls) {
		stmts = append(stmts, Statement{Cypher: callCypher, Params: map[string]any{"project": project, "rows": rows}})
	}
	return stmts
}

// Label maps a category to its node label. Labels cannot be parameters, so
// only known categories are accepted.
func Label(c models.Category) string {
	switch c {
	case models.CategoryFunction, models.CategoryStruct, models.CategoryClass,
		models.CategoryEnum, models.CategoryMacro:
		return string(c)
	}
	return ""
}

func entityRow(e *models.CodeEntity) map[string]any {
	return map[string]any{
		"id":        int64(e.ID),
		"category":  string(e.Category),
		"name":      e.Name,
		"fileName":  e.FileName,
		"startLine": int64(e.StartLine),
		"endLine":   int64(e.EndLine),
		"summary":   e.Summary,
	}
}

func callRow(rel models.CallRelation) map[string]any {
	return map[string]any{
		"from":     int64(rel.From),
		"to":       int64(rel.To),
		"line":     int64(rel.Loc.StartLine),
		"offset":   int64(rel.Loc.Offset),
		"fileName": rel.Loc.FileName,
	}
}

func batches(rows []map[string]any) [][]map[string]any {
	var out [][]map[string]any
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
