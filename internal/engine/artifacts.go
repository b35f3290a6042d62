package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"featloc/internal/models"
)

// Files written under the output directory.
const (
	SimilarityFile      = "similarityResult.json"
	SubtaskFile         = "subTaskResult.json"
	SubtaskLocationFile = "subTasksLocationResult.json"
	AnalysisFile        = "llmAnalysisResult.json"
	subtaskKeyPrefix    = "subTasks"
)

// SubtaskSet is the persisted decomposition of one query:
// {"query": q, "subTasks1": d1, "subTasks2": d2, ...}.
type SubtaskSet struct {
	Query    string
	Subtasks []string
}

func NewSubtaskSet(query string, descriptors []models.SubtaskDescriptor) SubtaskSet {
	set := SubtaskSet{Query: query, Subtasks: make([]string, len(descriptors))}
	for i, d := range descriptors {
		set.Subtasks[i] = d.Description
	}
	return set
}

// Descriptors numbers the sub-tasks by position.
func (s SubtaskSet) Descriptors() []models.SubtaskDescriptor {
	out := make([]models.SubtaskDescriptor, len(s.Subtasks))
	for i, d := range s.Subtasks {
		out[i] = models.SubtaskDescriptor{ClusterID: i, Description: d}
	}
	return out
}

func (s SubtaskSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeMember(&buf, "query", s.Query); err != nil {
		return nil, err
	}
	for i, d := range s.Subtasks {
		buf.WriteByte(',')
		if err := writeMember(&buf, subtaskKeyPrefix+strconv.Itoa(i+1), d); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key, value string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(key); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	buf.WriteByte(':')
	if err := enc.Encode(value); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

// UnmarshalJSON accepts any "subTasks<N>" keys and orders them by N.
func (s *SubtaskSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: sub-task file is not an object: %v", models.ErrMalformedInput, err)
	}

	type numbered struct {
		n    int
		text string
	}
	var tasks []numbered
	s.Query = ""
	for key, value := range raw {
		var text string
		switch {
		case key == "query":
			if err := json.Unmarshal(value, &s.Query); err != nil {
				return fmt.Errorf("%w: query is not a string", models.ErrMalformedInput)
			}
		case strings.HasPrefix(key, subtaskKeyPrefix):
			n, err := strconv.Atoi(strings.TrimPrefix(key, subtaskKeyPrefix))
			if err != nil {
				continue
			}
			if err := json.Unmarshal(value, &text); err != nil {
				return fmt.Errorf("%w: %s is not a string", models.ErrMalformedInput, key)
			}
			tasks = append(tasks, numbered{n: n, text: text})
		}
	}
	slices.SortFunc(tasks, func(a, b numbered) int { return a.n - b.n })

	s.Subtasks = make([]string, len(tasks))
	for i, t := range tasks {
		s.Subtasks[i] = t.text
	}
	return nil
}

type analysisRecord struct {
	AnalysisResult string `json:"analysis_result"`
}

// readJSON decodes path into v. A missing file or bad JSON is malformed input.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist", models.ErrMalformedInput, path)
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		if errors.Is(err, models.ErrMalformedInput) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", models.ErrMalformedInput, path, err)
	}
	return nil
}
