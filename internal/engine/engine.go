// Package engine is the service facade over one scan artifact: it locates
// queries, decomposes them, re-locates the sub-tasks and analyzes how they
// collaborate, persisting every step under the output directory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"featloc/internal/analyzer"
	"featloc/internal/cache"
	"featloc/internal/decompose"
	"featloc/internal/entity"
	"featloc/internal/indexer"
	"featloc/internal/locator"
	"featloc/internal/logging"
	"featloc/internal/models"
	"featloc/internal/relocate"
	"featloc/internal/utils"
)

type Options struct {
	OutputDir string
	Threshold float64
	TopK      int
}

type Deps struct {
	Indexer    *indexer.Indexer
	Cache      *cache.Cache
	Locator    *locator.Locator
	Decomposer *decompose.Engine
	Analyzer   *analyzer.Analyzer
	Logger     *slog.Logger
	Closers    []io.Closer
}

type QueryResult struct {
	Query    string                     `json:"query"`
	Results  []models.RetrievalHit      `json:"results"`
	Subtasks []models.SubtaskDescriptor `json:"subtasks"`
}

type Engine struct {
	opts Options
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	store    *entity.Store
	modTime  time.Time
	fileSize int64
}

func New(opts Options, deps Deps) *Engine {
	return &Engine{opts: opts, deps: deps, log: logging.OrDiscard(deps.Logger)}
}

func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.deps.Closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) OutputDir() string {
	return e.opts.OutputDir
}

func (e *Engine) path(name string) string {
	return filepath.Join(e.opts.OutputDir, name)
}

// Scan rebuilds the artifact from root and makes it the current store.
func (e *Engine) Scan(ctx context.Context, root string, progress indexer.ProgressFunc) (*entity.Store, error) {
	if e.deps.Indexer == nil {
		return nil, errors.New("engine has no indexer")
	}
	store, err := e.deps.Indexer.Scan(ctx, root, progress)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adopt(store)
	return store, nil
}

// Store returns the current scan artifact, reloading it when the file on disk
// changed since the last load.
func (e *Engine) Store() (*entity.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.path(indexer.ArtifactName)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no scan artifact at %s, run a scan first", models.ErrMalformedInput, path)
		}
		return nil, err
	}
	if e.store != nil && info.ModTime().Equal(e.modTime) && info.Size() == e.fileSize {
		return e.store, nil
	}

	store, err := entity.Load(path)
	if err != nil {
		return nil, err
	}
	e.store, e.modTime, e.fileSize = store, info.ModTime(), info.Size()
	e.log.Info("loaded scan artifact", "path", path, "entities", store.Len())
	return store, nil
}

// adopt must be called with e.mu held.
func (e *Engine) adopt(store *entity.Store) {
	e.store = store
	if info, err := os.Stat(e.path(indexer.ArtifactName)); err == nil {
		e.modTime, e.fileSize = info.ModTime(), info.Size()
	}
}

// Corpus returns the encoded corpus of the current artifact.
func (e *Engine) Corpus(ctx context.Context) ([]models.EmbeddingRecord, error) {
	store, err := e.Store()
	if err != nil {
		return nil, err
	}
	return e.deps.Cache.Get(ctx, store)
}

// Locate ranks the corpus against query and persists the hits.
func (e *Engine) Locate(ctx context.Context, query string) ([]models.RetrievalHit, error) {
	query = utils.NormalizeQuery(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", models.ErrMalformedInput)
	}
	corpus, err := e.Corpus(ctx)
	if err != nil {
		return nil, err
	}
	hits, err := e.deps.Locator.Locate(ctx, query, corpus, e.opts.Threshold, e.opts.TopK)
	if err != nil {
		return nil, err
	}
	record := []models.QueryRecord{{Query: query, Results: hits}}
	if err := utils.WriteJSON(e.path(SimilarityFile), record); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", SimilarityFile, err)
	}
	e.log.Info("located query", "query", query, "hits", len(hits))
	return hits, nil
}

// Query locates query and decomposes its hits into sub-tasks.
func (e *Engine) Query(ctx context.Context, query string) (*QueryResult, error) {
	hits, err := e.Locate(ctx, query)
	if err != nil {
		return nil, err
	}
	query = utils.NormalizeQuery(query)
	subtasks, err := e.deps.Decomposer.Decompose(ctx, query, hits)
	if err != nil {
		return nil, err
	}
	if err := utils.WriteJSON(e.path(SubtaskFile), NewSubtaskSet(query, subtasks)); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", SubtaskFile, err)
	}
	e.log.Info("decomposed query", "query", query, "subtasks", len(subtasks))
	return &QueryResult{Query: query, Results: hits, Subtasks: subtasks}, nil
}

// LastSubtasks reads the most recent decomposition from disk.
func (e *Engine) LastSubtasks() (SubtaskSet, error) {
	var set SubtaskSet
	err := readJSON(e.path(SubtaskFile), &set)
	return set, err
}

// LocateSubtasks re-locates every descriptor. With no descriptors it uses the
// last persisted decomposition.
func (e *Engine) LocateSubtasks(ctx context.Context, descriptors []models.SubtaskDescriptor) ([]models.SubtaskResult, error) {
	if len(descriptors) == 0 {
		set, err := e.LastSubtasks()
		if err != nil {
			return nil, err
		}
		descriptors = set.Descriptors()
	}
	corpus, err := e.Corpus(ctx)
	if err != nil {
		return nil, err
	}
	results, err := relocate.Relocate(ctx, e.deps.Locator, corpus, descriptors, e.opts.Threshold, e.opts.TopK)
	if err != nil {
		return nil, err
	}
	if err := utils.WriteJSON(e.path(SubtaskLocationFile), results); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", SubtaskLocationFile, err)
	}
	return results, nil
}

// LastSubtaskLocations reads the most recent re-localization from disk.
func (e *Engine) LastSubtaskLocations() ([]models.SubtaskResult, error) {
	var results []models.SubtaskResult
	if err := readJSON(e.path(SubtaskLocationFile), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// AnalyzeCollaboration explains how the sub-task results work together. With
// no results it uses the last persisted re-localization.
func (e *Engine) AnalyzeCollaboration(ctx context.Context, query string, results []models.SubtaskResult) (string, error) {
	if len(results) == 0 {
		var err error
		if results, err = e.LastSubtaskLocations(); err != nil {
			return "", err
		}
	}
	analysis, err := e.deps.Analyzer.AnalyzeCollaboration(ctx, query, results)
	if err != nil {
		return "", err
	}
	if err := utils.WriteJSON(e.path(AnalysisFile), analysisRecord{AnalysisResult: analysis}); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", AnalysisFile, err)
	}
	return analysis, nil
}
