package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reposit-go/reposit/internal/cli/config"
	"github.com/reposit-go/reposit/internal/cli/ui"
)

type configInitFlags struct {
	driver    string
	dsn       string
	cache     string
	redisAddr string
	logLevel  string
	yes       bool
	force     bool
}

func newConfigCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and inspect reposit.yml",
	}
	cmd.AddCommand(newConfigInitCommand(g))
	cmd.AddCommand(newConfigShowCommand(g))
	return cmd
}

func newConfigInitCommand(g *globals) *cobra.Command {
	f := &configInitFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a reposit.yml, prompting for missing values",
		Example: `  # Interactive
  reposit config init

  # Non-interactive
  reposit config init --driver postgres --dsn postgres://localhost/shop --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, g, f)
		},
	}

	cmd.Flags().StringVar(&f.driver, "driver", "", "Database driver")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "Connection string")
	cmd.Flags().StringVar(&f.cache, "cache", "", "Cache backend: none, memory or redis")
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", "", "Redis address for the redis cache")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Use flags and defaults without prompting")
	cmd.Flags().BoolVar(&f.force, "force", false, "Overwrite an existing reposit.yml")

	return cmd
}

func runConfigInit(cmd *cobra.Command, g *globals, f *configInitFlags) error {
	path := filepath.Join(g.dir, config.FileName)
	if _, err := os.Stat(path); err == nil && !f.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if f.driver != "" && !slices.Contains(config.Drivers(), f.driver) {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(
			fmt.Sprintf("unknown driver %q", f.driver),
			ui.FindSimilar(f.driver, config.Drivers()),
			color.NoColor,
		))
		return fmt.Errorf("unknown driver %q", f.driver)
	}

	answers := defaultAnswers(f)
	if !f.yes {
		if err := survey.Ask(initQuestions(f), &answers); err != nil {
			return err
		}
		if answers.Cache == "redis" && f.redisAddr == "" {
			prompt := &survey.Input{Message: "Redis address:", Default: answers.RedisAddr}
			if err := survey.AskOne(prompt, &answers.RedisAddr, survey.WithValidator(survey.Required)); err != nil {
				return err
			}
		}
	}

	cfg := answers.config()
	written, err := config.Save(g.dir, cfg)
	if err != nil {
		return err
	}
	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("wrote %s", written), color.NoColor)
	return nil
}

// initAnswers receives the survey answers
type initAnswers struct {
	Driver    string `survey:"driver"`
	DSN       string `survey:"dsn"`
	Cache     string `survey:"cache"`
	RedisAddr string
	LogLevel  string `survey:"log_level"`
}

func defaultAnswers(f *configInitFlags) initAnswers {
	a := initAnswers{
		Driver:    f.driver,
		DSN:       f.dsn,
		Cache:     f.cache,
		RedisAddr: f.redisAddr,
		LogLevel:  f.logLevel,
	}
	if a.Driver == "" {
		a.Driver = "sqlite3"
	}
	if a.DSN == "" {
		a.DSN = defaultDSN(a.Driver)
	}
	if a.Cache == "" {
		a.Cache = "none"
	}
	if a.Cache == "redis" && a.RedisAddr == "" {
		a.RedisAddr = "localhost:6379"
	}
	if a.LogLevel == "" {
		a.LogLevel = "info"
	}
	return a
}

// initQuestions asks only for the values not given as flags
func initQuestions(f *configInitFlags) []*survey.Question {
	var qs []*survey.Question
	if f.driver == "" {
		qs = append(qs, &survey.Question{
			Name:   "driver",
			Prompt: &survey.Select{Message: "Database driver:", Options: config.Drivers(), Default: "sqlite3"},
		})
	}
	if f.dsn == "" {
		qs = append(qs, &survey.Question{
			Name:     "dsn",
			Prompt:   &survey.Input{Message: "Connection string:", Help: "e.g. shop.db or postgres://user@localhost/shop"},
			Validate: survey.Required,
		})
	}
	if f.cache == "" {
		qs = append(qs, &survey.Question{
			Name:   "cache",
			Prompt: &survey.Select{Message: "Cache reads in:", Options: []string{"none", "memory", "redis"}, Default: "none"},
		})
	}
	if f.logLevel == "" {
		qs = append(qs, &survey.Question{
			Name:   "log_level",
			Prompt: &survey.Select{Message: "Log level:", Options: []string{"debug", "info", "warn", "error"}, Default: "info"},
		})
	}
	return qs
}

func (a initAnswers) config() *config.Config {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: a.Driver, DSN: a.DSN},
		Log:      config.LogConfig{Level: a.LogLevel},
	}
	switch a.Cache {
	case "memory":
		cfg.Cache.Backend = "memory"
	case "redis":
		cfg.Cache.Backend = "redis"
		cfg.Cache.Addr = a.RedisAddr
	}
	return cfg
}

func defaultDSN(driver string) string {
	switch driver {
	case "postgres", "pgx":
		return "postgres://localhost:5432/reposit?sslmode=disable"
	case "mysql":
		return "root@tcp(localhost:3306)/reposit?parseTime=true"
	default:
		return "reposit.db"
	}
}

func newConfigShowCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.dir)
			if err != nil {
				return err
			}

			backend := cfg.Cache.Backend
			if backend == "" {
				backend = "none"
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("driver", cfg.Database.Driver)
			kv.AddRow("dsn", cfg.Database.DSN)
			kv.AddRow("cache", backend)
			if cfg.Cache.Backend == "redis" {
				kv.AddRow("cache addr", cfg.Cache.Addr)
			}
			if cfg.Cache.Backend != "" {
				kv.AddRow("cache ttl", cfg.CacheSettings().DefaultTTL.String())
			}
			kv.AddRow("log level", cfg.Log.Level)
			kv.Render()
			return nil
		},
	}
}
