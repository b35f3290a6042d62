// Package indexer turns a source tree into the annotated entity artifact:
// walk, parse, summarize, build call relations and chains, persist.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"featloc/internal/callgraph"
	"featloc/internal/entity"
	"featloc/internal/logging"
	"featloc/internal/models"
	"featloc/internal/parser"
	"featloc/internal/utils"
)

const (
	ArtifactName = "sourceCodeResult.json"
	NumWorkers   = 4
)

// Summarizer produces the short functional summary of an entity. On failure
// it returns models.SummaryFailedMarker along with the error.
type Summarizer interface {
	Summarize(ctx context.Context, entity *models.CodeEntity) (string, error)
}

// ProgressFunc receives the number of summarized entities so far.
type ProgressFunc func(done, total int)

type Indexer struct {
	parsers    *parser.ParserFactory
	summarizer Summarizer
	chainOpts  callgraph.ChainOptions
	outputDir  string
	workers    int
	reuse      bool
	logger     *slog.Logger
}

type Option func(*Indexer)

func WithChainOptions(opts callgraph.ChainOptions) Option {
	return func(idx *Indexer) { idx.chainOpts = opts }
}

func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithSummaryReuse controls whether summaries from the previous artifact are
// kept for entities whose code did not change. Enabled by default.
func WithSummaryReuse(enabled bool) Option {
	return func(idx *Indexer) { idx.reuse = enabled }
}

func WithLogger(l *slog.Logger) Option {
	return func(idx *Indexer) { idx.logger = logging.OrDiscard(l) }
}

func NewIndexer(summarizer Summarizer, outputDir string, opts ...Option) *Indexer {
	idx := &Indexer{
		parsers:    parser.NewParserFactory(),
		summarizer: summarizer,
		chainOpts:  callgraph.DefaultChainOptions(),
		outputDir:  outputDir,
		workers:    NumWorkers,
		reuse:      true,
		logger:     logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// ArtifactPath is where Scan writes the annotated entities.
func (idx *Indexer) ArtifactPath() string {
	return filepath.Join(idx.outputDir, ArtifactName)
}

// Scan builds the entity store for rootPath. Ids follow file walk order and
// source order within a file. Summaries, relations and chains are all in place
// before the artifact is written.
func (idx *Indexer) Scan(ctx context.Context, rootPath string, progress ProgressFunc) (*entity.Store, error) {
	root, err := utils.NormalizeProjectRoot(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize project root: %w", err)
	}

	files, err := utils.GetAllSourceFiles(root, parser.IsSupportedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	idx.logger.Info("found source files", "root", root, "files", len(files))

	store := entity.NewStore()
	for i, raws := range idx.parseAll(ctx, files) {
		if len(raws) == 0 {
			continue
		}
		rel, err := filepath.Rel(root, files[i])
		if err != nil {
			rel = files[i]
		}
		store.Add(filepath.ToSlash(rel), raws)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.logger.Info("parsed entities", "entities", store.Len())

	if err := idx.summarize(ctx, store, progress); err != nil {
		return nil, err
	}

	stats := callgraph.Annotate(store, callgraph.NewNameResolver(), idx.chainOpts)
	idx.logger.Info("built call graph",
		"functions", stats.Functions, "relations", stats.Relations,
		"roots", stats.Roots, "chains", stats.Chains)

	if err := store.Save(idx.ArtifactPath()); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", ArtifactName, err)
	}
	return store, nil
}

// parseAll parses files concurrently and returns their entities indexed like
// files. Unreadable or unparsable files contribute nothing.
func (idx *Indexer) parseAll(ctx context.Context, files []string) [][]parser.RawEntity {
	results := make([][]parser.RawEntity, len(files))
	fileCh := make(chan int, len(files))
	for i := range files {
		fileCh <- i
	}
	close(fileCh)

	var wg sync.WaitGroup
	for w := 0; w < idx.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range fileCh {
				if ctx.Err() != nil {
					return
				}
				results[i] = idx.parseFile(files[i])
			}
		}()
	}
	wg.Wait()
	return results
}

func (idx *Indexer) parseFile(path string) []parser.RawEntity {
	p, err := idx.parsers.GetParserByFilePath(path)
	if err != nil {
		return nil
	}
	code, err := os.ReadFile(path)
	if err != nil {
		idx.logger.Warn("failed to read source file", "path", path, "error", err)
		return nil
	}
	raws, err := p.ExtractEntities(path, code)
	if err != nil {
		idx.logger.Warn("failed to parse source file", "path", path, "error", err)
		return nil
	}
	return raws
}

// summarize fills Summary on every entity. A failed summary keeps the marker
// and does not stop the scan; only cancellation does.
func (idx *Indexer) summarize(ctx context.Context, store *entity.Store, progress ProgressFunc) error {
	entities := store.Entities()
	total := len(entities)
	if progress != nil {
		progress(0, total)
	}

	previous := map[string]string{}
	if idx.reuse {
		previous = idx.previousSummaries()
	}

	var done, reused, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for _, e := range entities {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if s, ok := previous[utils.HashContent(e.Code)]; ok {
				e.Summary = s
				reused.Add(1)
			} else {
				summary, err := idx.summarizer.Summarize(gctx, e)
				if err != nil {
					failed.Add(1)
					idx.logger.Warn("summary generation failed", "id", e.ID, "file", e.FileName, "error", err)
				}
				if summary == "" {
					summary = models.SummaryFailedMarker
				}
				e.Summary = summary
			}
			if progress != nil {
				progress(int(done.Add(1)), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	idx.logger.Info("summarized entities", "total", total, "reused", reused.Load(), "failed", failed.Load())
	return nil
}

// previousSummaries maps code hashes to the summaries of the last artifact.
// Failed summaries are not carried over.
func (idx *Indexer) previousSummaries() map[string]string {
	out := map[string]string{}
	prev, err := entity.Load(idx.ArtifactPath())
	if err != nil {
		return out
	}
	for _, e := range prev.Entities() {
		if e.Summary == "" || e.Summary == models.SummaryFailedMarker {
			continue
		}
		out[utils.HashContent(e.Code)] = e.Summary
	}
	return out
}
