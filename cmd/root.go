package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/issuetree/internal/config"
	"github.com/zjrosen/issuetree/internal/flags"
	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
	"github.com/zjrosen/issuetree/internal/paths"
)

var version = "dev"

// cli is the state shared by every subcommand of one invocation.
type cli struct {
	cfgFile string
	debug   bool
	verbose bool

	cfg        config.Config
	configPath string // file loaded, or where saves go when none was
	flags      *flags.Registry
	logCleanup func()
	logDone    chan struct{}
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}
	root := &cobra.Command{
		Use:   "issuetree",
		Short: "Browse issue hierarchies as trees",
		Long: `issuetree runs an issue query against a Jira or local site and shows the
results as a tree: subtasks under their parents, stories under their epics,
with the parents and epics outside the result fetched on demand.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "",
		"config file (default: .issuetree/config.yaml, then ~/.config/issuetree/config.yaml)")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false,
		"write a debug log (also enabled by ISSUETREE_DEBUG)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false,
		"mirror log entries to stderr")

	root.AddCommand(
		newTreeCmd(c),
		newQueryCmd(c),
		newImportCmd(c),
		newCommentsCmd(c),
	)
	return root, c
}

func (c *cli) init(stderr io.Writer) error {
	v := viper.New()
	path, err := readConfig(v, c.cfgFile)
	if err != nil {
		return err
	}
	if err := v.Unmarshal(&c.cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	c.configPath = path

	if err := c.initLogging(stderr); err != nil {
		return err
	}
	if err := config.Validate(c.cfg); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", c.configPath, err)
	}
	c.flags = flags.New(c.cfg.Flags)
	return nil
}

func (c *cli) initLogging(stderr io.Writer) error {
	debug := c.debug || os.Getenv("ISSUETREE_DEBUG") != ""
	if !debug && !c.verbose {
		return nil
	}
	if debug {
		logPath := os.Getenv("ISSUETREE_LOG")
		if logPath == "" {
			logPath = c.cfg.Log.Path
		}
		if logPath == "" {
			logPath = "debug.log"
		}
		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing debug log: %w", err)
		}
		c.logCleanup = cleanup
	} else {
		c.logCleanup = log.InitWriter(io.Discard)
	}
	log.SetMinLevel(log.ParseLevel(c.cfg.Log.Level))
	if c.verbose {
		c.mirrorLog(stderr)
	}
	log.Info(log.CatConfig, "Logging enabled", "config", c.configPath, "version", version)
	return nil
}

// mirrorLog copies every log entry to w until the logger shuts down.
func (c *cli) mirrorLog(w io.Writer) {
	listener := log.NewListener(context.Background())
	if listener == nil {
		return
	}
	done := make(chan struct{})
	c.logDone = done
	go func() {
		defer close(done)
		listener.Drain(func(e log.LogEvent) {
			_, _ = io.WriteString(w, e.Payload)
		})
	}()
}

func (c *cli) close() {
	if c.logCleanup != nil {
		c.logCleanup()
		c.logCleanup = nil
	}
	// The logger's broker is closed by now, so the mirror drains and exits.
	if c.logDone != nil {
		<-c.logDone
		c.logDone = nil
	}
}

// setDefaults registers every default so partial config files still
// unmarshal to a complete Config.
func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("sites", d.Sites)
	v.SetDefault("explorer.nest_subtasks", d.Explorer.NestSubtasks)
	v.SetDefault("explorer.empty_state", d.Explorer.EmptyState)
	v.SetDefault("fetch.concurrency", d.Fetch.Concurrency)
	v.SetDefault("fetch.max_retries", d.Fetch.MaxRetries)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	// Per key so a file setting one flag keeps the defaults of the others.
	for name, on := range d.Flags {
		v.SetDefault("flags."+name, on)
	}
	v.SetDefault("log.level", d.Log.Level)
}

// readConfig loads the config file into v and returns its path.
//
// Lookup order:
//  1. --config
//  2. .issuetree/config.yaml (current directory or an ancestor)
//  3. ~/.config/issuetree/config.yaml
//
// When none exists a default is written to the project location.
func readConfig(v *viper.Viper, cfgFile string) (string, error) {
	setDefaults(v)

	projectFile := paths.ProjectConfigFile("")
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case fileExists(projectFile):
		v.SetConfigFile(projectFile)
	default:
		v.AddConfigPath(config.DefaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return "", fmt.Errorf("reading config: %w", err)
		}
		if writeErr := config.WriteDefaultConfig(projectFile); writeErr == nil {
			v.SetConfigFile(projectFile)
			_ = v.ReadInConfig()
		}
		// If write fails, just continue with defaults (no config file)
		return projectFile, nil
	}
	return v.ConfigFileUsed(), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// site picks a configured site by ID, or the first site of one of the
// wanted products when id is empty.
func (c *cli) site(id string, want ...issue.Product) (config.SiteConfig, error) {
	accepts := func(p string) bool {
		if len(want) == 0 {
			return true
		}
		for _, w := range want {
			if issue.Product(p) == w {
				return true
			}
		}
		return false
	}

	if id != "" {
		sc, ok := c.cfg.SiteByID(id)
		if !ok {
			return config.SiteConfig{}, fmt.Errorf("unknown site %q", id)
		}
		if !accepts(sc.Product) {
			return config.SiteConfig{}, fmt.Errorf("site %q is a %s site; this command needs %v", id, sc.Product, want)
		}
		return sc, nil
	}
	for _, sc := range c.cfg.Sites {
		if accepts(sc.Product) {
			return sc, nil
		}
	}
	return config.SiteConfig{}, fmt.Errorf("no %v site configured", want)
}

// Execute runs the root command.
func Execute() error {
	root, c := newRootCmd()
	defer c.close()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
}
