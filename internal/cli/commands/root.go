package commands

import (
	"context"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reposit-go/reposit/internal/cli/config"
	"github.com/reposit-go/reposit/internal/cli/ui"
	"github.com/reposit-go/reposit/pkg/repository"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globals holds the persistent flags shared by every command
type globals struct {
	dir     string
	noColor bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "reposit",
		Short: "Repository provider tooling",
		Long: color.CyanString(`reposit - a typed repository over relational databases

Maps Go structs to tables, runs units of work against SQLite, PostgreSQL
and MySQL, and caches reads in memory or Redis.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Directory holding reposit.yml")
	rootCmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newConfigCommand(g))
	rootCmd.AddCommand(newSQLCommand(g))
	rootCmd.AddCommand(newDemoCommand(g))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("reposit version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(rootCmd.ErrOrStderr(), ui.RepositoryError(err, color.NoColor))
		return err
	}
	return nil
}

// session is an open store plus the config and logger it was built from
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *repository.Store
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// open loads the config in g.dir and opens a store with the configured cache
func (g *globals) open(ctx context.Context) (*session, error) {
	cfg, err := config.Load(g.dir)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	opts := []repository.Option{repository.WithLogger(logger)}
	var backend repository.CacheBackend

	switch cfg.Cache.Backend {
	case "memory":
		backend = repository.NewMemoryCache(cfg.CacheSettings())
	case "redis":
		rc, err := repository.NewRedisCache(ctx, cfg.RedisConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to cache: %w", err)
		}
		backend = rc
	}
	if backend != nil {
		opts = append(opts, repository.WithCache(backend, cfg.CacheSettings()))
	}

	store, err := repository.Open(ctx, cfg.Descriptor(), opts...)
	if err != nil {
		if backend != nil {
			_ = backend.Close()
		}
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, store: store}, nil
}
