package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"featloc/internal/cache"
	"featloc/internal/config"
	"featloc/internal/engine"
	"featloc/internal/graphdb"
	"featloc/internal/logging"
	"featloc/internal/models"
	"featloc/internal/qdrant"
	"featloc/internal/utils"
)

// Set by main from the ldflags-stamped values.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "featloc",
	Short:         "Locate and decompose features in a codebase",
	Long:          "A CLI tool that maps natural language feature requests onto code entities, splits them into sub-tasks and explains how the pieces collaborate",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig resolves configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.UserConfigPath()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		cfg.OutputDir = out
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(os.Stderr, logging.LevelFromString(cfg.LogLevel))
}

// openEngine loads config and builds the engine. The caller closes it.
func openEngine(cmd *cobra.Command) (*engine.Engine, *config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg)
	eng, err := engine.Build(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, cfg, logger, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func requireQuery(cmd *cobra.Command) (string, error) {
	q, _ := cmd.Flags().GetString("q")
	if strings.TrimSpace(q) == "" {
		return "", fmt.Errorf("%w: --q is required", models.ErrMalformedInput)
	}
	return q, nil
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Parse, summarize and link every source file under a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		dir, _ := cmd.Flags().GetString("dir")
		fmt.Printf("Scanning project at: %s\n", dir)

		store, err := eng.Scan(cmd.Context(), dir, func(done, total int) {
			fmt.Fprintf(os.Stderr, "\r  Summarized %d/%d entities", done, total)
			if done == total {
				fmt.Fprintln(os.Stderr)
			}
		})
		if err != nil {
			return err
		}

		fmt.Printf("✓ %d entities (%d functions) written to %s\n",
			store.Len(), len(store.Functions()), eng.OutputDir())
		return nil
	},
}

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Rank code entities by similarity to a natural language query",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := requireQuery(cmd)
		if err != nil {
			return err
		}
		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		hits, err := eng.Locate(cmd.Context(), q)
		if err != nil {
			return err
		}
		return printJSON(hits)
	},
}

var decomposeCmd = &cobra.Command{
	Use:   "decompose",
	Short: "Locate a query and split its hits into described sub-tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := requireQuery(cmd)
		if err != nil {
			return err
		}
		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		result, err := eng.Query(cmd.Context(), q)
		if err != nil {
			return err
		}
		return printJSON(result.Subtasks)
	},
}

var relocateCmd = &cobra.Command{
	Use:   "relocate",
	Short: "Locate code for each sub-task (defaults to the last decomposition)",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		subtasks, _ := cmd.Flags().GetStringArray("subtask")
		var descriptors []models.SubtaskDescriptor
		for i, s := range subtasks {
			descriptors = append(descriptors, models.SubtaskDescriptor{ClusterID: i, Description: s})
		}

		results, err := eng.LocateSubtasks(cmd.Context(), descriptors)
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Explain how the last re-located sub-tasks collaborate",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		q, _ := cmd.Flags().GetString("q")
		analysis, err := eng.AnalyzeCollaboration(cmd.Context(), q, nil)
		if err != nil {
			return err
		}
		fmt.Println(analysis)
		return nil
	},
}

var exportGraphCmd = &cobra.Command{
	Use:   "export-graph",
	Short: "Write the scanned entities and call relations to Neo4j",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, logger, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		store, err := eng.Store()
		if err != nil {
			return err
		}

		project, _ := cmd.Flags().GetString("project")
		if project == "" {
			if project, err = utils.ComputeProjectID(cfg.OutputDir); err != nil {
				return fmt.Errorf("failed to compute project id: %w", err)
			}
		}

		client, err := graphdb.NewClient(cmd.Context(), cfg.Neo4j)
		if err != nil {
			return err
		}
		defer client.Close()

		stats, err := graphdb.NewExporter(client, logger).Export(cmd.Context(), project, store)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Exported %d entities and %d call relations as project %s\n",
			stats.Entities, stats.Relations, project)
		return nil
	},
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Delete every persisted embedding collection from Qdrant",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		qc, err := qdrant.NewClient(cfg.Qdrant, newLogger(cfg))
		if err != nil {
			return err
		}
		defer qc.Close()

		names, err := qc.ListCollections(cmd.Context(), cache.CollectionPrefix)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Printf("Deleting collection: %s\n", name)
			if err := qc.DeleteCollection(cmd.Context(), name); err != nil {
				return err
			}
		}
		fmt.Printf("✓ %d collections deleted\n", len(names))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("featloc %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.featloc/config.json)")
	rootCmd.PersistentFlags().String("output", "", "Output directory for artifacts (overrides output.dir)")

	scanCmd.Flags().String("dir", ".", "Project root directory")
	locateCmd.Flags().String("q", "", "Natural language query")
	decomposeCmd.Flags().String("q", "", "Natural language query")
	relocateCmd.Flags().StringArray("subtask", nil, "Sub-task description (repeatable)")
	analyzeCmd.Flags().String("q", "", "The query the sub-tasks came from (defaults to the first sub-task)")
	exportGraphCmd.Flags().String("project", "", "Project name stored on every node (default derived from the output directory)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	jobsCmd.Flags().Int("limit", 10, "Maximum number of jobs to list")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(relocateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(exportGraphCmd)
	rootCmd.AddCommand(clearCacheCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
