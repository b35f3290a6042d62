package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featloc/internal/models"
)

type fakeCompleter struct {
	system, user string
	reply        string
	err          error
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

func results() []models.SubtaskResult {
	return []models.SubtaskResult{
		{Subtask: "实现文件打开的函数是什么？", Results: []models.TrimmedHit{
			{Similarity: 0.8, Category: models.CategoryFunction, Code: "int open_file(void) {\n}"},
		}},
		{Subtask: "实现错误处理的函数是什么？", Results: []models.TrimmedHit{}},
	}
}

func TestAnalyzeCollaboration(t *testing.T) {
	llm := &fakeCompleter{reply: "子任务1负责打开文件，子任务2处理错误。"}
	a := NewAnalyzer(llm, nil)

	out, err := a.AnalyzeCollaboration(context.Background(), "读取配置文件", results())
	require.NoError(t, err)
	assert.Equal(t, "子任务1负责打开文件，子任务2处理错误。", out)

	assert.Equal(t, systemPrompt, llm.system)
	assert.Contains(t, llm.user, "用户查询：读取配置文件")
	assert.Contains(t, llm.user, "子任务1: 实现文件打开的函数是什么？ \n协作：[{\"similarity\":0.8")
	assert.Contains(t, llm.user, "子任务2: 实现错误处理的函数是什么？ \n协作：[]")
	assert.True(t, strings.Index(llm.user, "子任务1") < strings.Index(llm.user, "子任务2"))
}

func TestAnalyzeCollaborationFailure(t *testing.T) {
	a := NewAnalyzer(&fakeCompleter{err: errors.New("503")}, nil)
	_, err := a.AnalyzeCollaboration(context.Background(), "q", results())
	assert.ErrorIs(t, err, models.ErrCollaborator)
}

func TestAnalyzeCollaborationNoResults(t *testing.T) {
	llm := &fakeCompleter{reply: "x"}
	_, err := NewAnalyzer(llm, nil).AnalyzeCollaboration(context.Background(), "q", nil)
	assert.ErrorIs(t, err, models.ErrMalformedInput)
	assert.Empty(t, llm.user)
}

func TestBuildPromptQueryFallback(t *testing.T) {
	prompt, err := BuildPrompt("  ", results())
	require.NoError(t, err)
	assert.Contains(t, prompt, "用户查询：实现文件打开的函数是什么？")

	prompt, err = BuildPrompt("", []models.SubtaskResult{{}})
	require.NoError(t, err)
	assert.Contains(t, prompt, "用户查询："+missingQuery)
}
