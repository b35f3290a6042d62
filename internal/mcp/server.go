// Package mcp exposes feature location over a line-delimited JSON-RPC stdio
// transport in the Model Context Protocol shape.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"featloc/internal/engine"
	"featloc/internal/logging"
	"featloc/internal/models"
)

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Service is the part of *engine.Engine the tools call.
type Service interface {
	Locate(ctx context.Context, query string) ([]models.RetrievalHit, error)
	Query(ctx context.Context, query string) (*engine.QueryResult, error)
	LocateSubtasks(ctx context.Context, descriptors []models.SubtaskDescriptor) ([]models.SubtaskResult, error)
	AnalyzeCollaboration(ctx context.Context, query string, results []models.SubtaskResult) (string, error)
}

type Server struct {
	svc     Service
	version string
	logger  *slog.Logger
}

func NewServer(svc Service, version string, logger *slog.Logger) *Server {
	return &Server{svc: svc, version: version, logger: logging.OrDiscard(logger)}
}

// Run serves requests from r until EOF or ctx is done. Requests without an id
// are notifications and get no response.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	writer := bufio.NewWriter(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			var req JSONRPCRequest
			if jerr := json.Unmarshal(line, &req); jerr != nil {
				s.writeError(writer, nil, codeParseError, "Parse error")
			} else {
				s.handleRequest(ctx, writer, &req)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, writer *bufio.Writer, req *JSONRPCRequest) {
	if req.ID == nil {
		s.logger.Debug("notification", "method", req.Method)
		return
	}
	switch req.Method {
	case "initialize":
		s.handleInitialize(writer, req)
	case "ping":
		s.writeResponse(writer, req.ID, map[string]any{})
	case "tools/list":
		s.writeResponse(writer, req.ID, map[string]any{"tools": toolDefinitions()})
	case "tools/call":
		s.handleToolsCall(ctx, writer, req)
	default:
		s.writeError(writer, req.ID, codeMethodNotFound, "Method not found")
	}
}

func (s *Server) handleInitialize(writer *bufio.Writer, req *JSONRPCRequest) {
	s.writeResponse(writer, req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo": map[string]string{
			"name":    "featloc-mcp",
			"version": s.version,
		},
		"capabilities": map[string]any{
			"tools": map[string]bool{},
		},
	})
}

func queryTool(name, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"description": description,
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]string{"type": "string"},
			},
			"required": []string{"query"},
		},
	}
}

func toolDefinitions() []map[string]any {
	return []map[string]any{
		queryTool("locate_feature", "Rank code entities of the scanned codebase against a natural language feature request"),
		queryTool("decompose_feature", "Locate a feature request and split it into sub-task questions"),
		{
			"name":        "locate_subtasks",
			"description": "Locate each sub-task question; defaults to the last decomposition",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"subtasks": map[string]any{
						"type":  "array",
						"items": map[string]string{"type": "string"},
					},
				},
			},
		},
		queryTool("analyze_collaboration", "Explain how the located sub-tasks cooperate to implement the request"),
	}
}

type toolInput struct {
	Query    string   `json:"query"`
	Subtasks []string `json:"subtasks"`
}

func (s *Server) handleToolsCall(ctx context.Context, writer *bufio.Writer, req *JSONRPCRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(writer, req.ID, codeInvalidParams, "Invalid params")
		return
	}
	var input toolInput
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &input); err != nil {
			s.writeError(writer, req.ID, codeInvalidParams, "Invalid arguments")
			return
		}
	}

	var result any
	var err error
	switch params.Name {
	case "locate_feature":
		result, err = s.svc.Locate(ctx, input.Query)
	case "decompose_feature":
		result, err = s.svc.Query(ctx, input.Query)
	case "locate_subtasks":
		descriptors := make([]models.SubtaskDescriptor, len(input.Subtasks))
		for i, d := range input.Subtasks {
			descriptors[i] = models.SubtaskDescriptor{ClusterID: i, Description: d}
		}
		result, err = s.svc.LocateSubtasks(ctx, descriptors)
	case "analyze_collaboration":
		var analysis string
		analysis, err = s.svc.AnalyzeCollaboration(ctx, input.Query, nil)
		result = map[string]string{"analysis_result": analysis}
	default:
		s.writeError(writer, req.ID, codeInvalidParams, "Unknown tool")
		return
	}

	if err != nil {
		s.logger.Warn("tool call failed", "tool", params.Name, "error", err)
		code := codeInternalError
		if errors.Is(err, models.ErrMalformedInput) {
			code = codeInvalidParams
		}
		s.writeError(writer, req.ID, code, err.Error())
		return
	}

	text, err := formatResult(result)
	if err != nil {
		s.writeError(writer, req.ID, codeInternalError, err.Error())
		return
	}
	s.writeResponse(writer, req.ID, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	})
}

func (s *Server) writeResponse(writer *bufio.Writer, id any, result any) {
	s.write(writer, JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(writer *bufio.Writer, id any, code int, message string) {
	s.write(writer, JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}})
}

func (s *Server) write(writer *bufio.Writer, resp JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		return
	}
	_, _ = writer.Write(data)
	_ = writer.WriteByte('\n')
	_ = writer.Flush()
}

func formatResult(result any) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
