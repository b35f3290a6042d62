// Package llm wraps an OpenAI-compatible chat endpoint (DeepSeek by default)
// for entity summaries, sub-task questions and collaboration analysis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"featloc/internal/config"
	"featloc/internal/logging"
	"featloc/internal/models"
)

type Client struct {
	client       *openai.Client
	model        string
	summaryModel string
	logger       *slog.Logger
}

func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	logger = logging.OrDiscard(logger)
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set, text generation will fail")
	}
	clientCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	summaryModel := cfg.LLM.SummaryModel
	if summaryModel == "" {
		summaryModel = cfg.LLM.Model
	}
	return &Client{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.LLM.Model,
		summaryModel: summaryModel,
		logger:       logger,
	}
}

// Complete sends one system + user exchange and returns the trimmed reply.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, c.model, system, user)
}

func (c *Client) complete(ctx context.Context, model, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty completion")
	}
	return content, nil
}

const summarySystemPrompt = "你是一个软件工程领域的专家，擅长源代码分析。"

// Summarize asks for a functional summary of at most twenty words. On failure
// it returns models.SummaryFailedMarker together with the error so the caller
// can keep the marker.
func (c *Client) Summarize(ctx context.Context, entity *models.CodeEntity) (string, error) {
	user := "为以下代码片段生成一个二十个字以内的简短的概括说明，描述其功能和用途：\n\n" + entity.Code
	summary, err := c.complete(ctx, c.summaryModel, summarySystemPrompt, user)
	if err != nil {
		return models.SummaryFailedMarker, fmt.Errorf("%w: summarize entity %d: %v", models.ErrCollaborator, entity.ID, err)
	}
	return summary, nil
}

const clusterPrompt = "下面是多个代码实体描述的聚类结果，它们对应同一个功能任务，首先你要对这些功能描述进行提炼总结，" +
	"然后对提炼后的结果生成一个提问句式，用于充当code search的查询。" +
	"例如提炼结果是'实现一个文件打开函数，处理路径读取及错误情况'，" +
	"那么你应该生成一个对应的提问句式'实现文件打开操作，处理路径读取及错误情况的函数是什么？'。" +
	"基本都提炼成'实现XXX的函数是什么'这种句式，在你的回答中，你只用输出这个提问句式就可以了。" +
	"注意，你只需要提炼出一个提问句式，因为这只有一个聚类。提问要尽量具体。" +
	"这是聚类结果：\n\n"

// DescribeCluster turns the concatenated descriptions of one cluster into a
// single "what is the function that implements X" question. On failure it
// returns models.SubtaskFailedMarker and the error.
func (c *Client) DescribeCluster(ctx context.Context, clusterText string) (string, error) {
	question, err := c.complete(ctx, c.model, "You are a helpful assistant.", clusterPrompt+clusterText)
	if err != nil {
		return models.SubtaskFailedMarker, fmt.Errorf("%w: describe cluster: %v", models.ErrCollaborator, err)
	}
	return question, nil
}
