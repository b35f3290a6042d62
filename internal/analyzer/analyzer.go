// Package analyzer asks the text-generation model how located sub-tasks
// cooperate to implement the original feature request.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"featloc/internal/logging"
	"featloc/internal/models"
)

const (
	systemPrompt   = "你是一个软件工程领域的专家。"
	missingQuery   = "未提供查询"
	promptTemplate = `你是一个帮助分析feature location结果的助手。以下是一个用户查询和与之相关的多个子查询（子任务）的定位结果：

用户查询：%s

以下是各个子查询（子任务）的代码以及其他信息：
%s

请根据以上信息分析：
1. 各个子任务是如何合作完成用户查询的？
2. 请详细解释这些子任务的协作方式是什么？
`
)

// Completer is satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Analyzer struct {
	llm    Completer
	logger *slog.Logger
}

func NewAnalyzer(c Completer, logger *slog.Logger) *Analyzer {
	return &Analyzer{llm: c, logger: logging.OrDiscard(logger)}
}

// AnalyzeCollaboration returns the model's explanation of how the sub-tasks
// work together. An empty query falls back to the first sub-task.
func (a *Analyzer) AnalyzeCollaboration(ctx context.Context, query string, results []models.SubtaskResult) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("%w: no sub-task results to analyze", models.ErrMalformedInput)
	}
	prompt, err := BuildPrompt(query, results)
	if err != nil {
		return "", err
	}
	a.logger.Debug("analyzing collaboration", "subtasks", len(results), "prompt_bytes", len(prompt))

	analysis, err := a.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: collaboration analysis: %v", models.ErrCollaborator, err)
	}
	return analysis, nil
}

// BuildPrompt lists every sub-task with its located code under the query.
func BuildPrompt(query string, results []models.SubtaskResult) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" && len(results) > 0 {
		query = results[0].Subtask
	}
	if query == "" {
		query = missingQuery
	}

	var b strings.Builder
	for i, r := range results {
		hits, err := json.Marshal(r.Results)
		if err != nil {
			return "", fmt.Errorf("failed to encode results of subtask %d: %w", i+1, err)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "子任务%d: %s \n协作：%s", i+1, r.Subtask, hits)
	}
	return fmt.Sprintf(promptTemplate, query, b.String()), nil
}
