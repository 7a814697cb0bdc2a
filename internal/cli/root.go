package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/entitybug/generator"
	"github.com/example/entitybug/index"
	"github.com/example/entitybug/internal/config"
	"github.com/example/entitybug/internal/logger"
	"github.com/example/entitybug/orm"
	"github.com/example/entitybug/processor"
)

func init() {
	processor.RegisterProcessor(generator.Processor)
}

// globalOptions holds the persistent flags shared by all commands.
type globalOptions struct {
	configFile   string
	envFile      string
	logLevel     string
	includeTests bool
	outputDir    string
	index        string
	resolver     string
}

// app is the state shared by commands once flags and configuration are
// resolved.
type app struct {
	opts globalOptions
	cfg  *config.Config
	log  *logger.Logger
}

// RootCmd returns the entitybug command tree.
func RootCmd(version string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "entitybug",
		Short:   "Generate entities from annotations and register them with the data-mapping layer",
		Version: version,
		Long: `entitybug generates entity types for Go types annotated with
@entitybug.GenerateEntity, discovers generated entities through their
@entitybug.GeneratedEntityMarker and registers them with the data-mapping
layer, which then enhances them.

Examples:
  entitybug generate ./...
  entitybug discover --index manifest .
  entitybug build --resolver tool ./...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.log != nil {
				return a.log.Close()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.opts.configFile, "config", "", "Path to the configuration file (default: ./"+config.FileName+" if present)")
	flags.StringVar(&a.opts.envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.BoolVar(&a.opts.includeTests, "include-tests", false, "Also process test files")
	flags.StringVar(&a.opts.outputDir, "output-dir", "", "Write generated files under this directory instead of the package directories")
	flags.StringVar(&a.opts.index, "index", "", "How generated entities are discovered: manifest or source (default: manifest)")
	flags.StringVar(&a.opts.resolver, "resolver", "", "Scope of the enhancement: module or tool (default: module)")

	rootCmd.AddCommand(generateCmd(a))
	rootCmd.AddCommand(discoverCmd(a))
	rootCmd.AddCommand(buildCmd(a))

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	bootstrap := logger.New(logger.Options{Level: a.opts.logLevel})
	config.LoadEnvFile(bootstrap.Logger, a.opts.envFile)
	_ = bootstrap.Close()

	cfg, err := config.Load(a.opts.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("include-tests") {
		cfg.IncludeTests = a.opts.includeTests
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = a.opts.outputDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.opts.logLevel
	}
	if flags.Changed("index") {
		cfg.Index = a.opts.index
	}
	if flags.Changed("resolver") {
		cfg.Resolver = a.opts.resolver
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	return nil
}

func (a *app) processorConfig(patterns []string) processor.Config {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	cfg := processor.Config{
		Patterns: patterns,
		Tests:    a.cfg.IncludeTests,
		Logger:   a.log.Logger,
	}
	if a.cfg.OutputDir != "" {
		cfg.OutputFactory = processor.DirOutputFactory(a.cfg.OutputDir)
	}
	return cfg
}

// loadIndex builds the index in the configured mode. Manifests are read from
// root, sources are scanned for the given patterns.
func (a *app) loadIndex(ctx context.Context, root string, patterns []string) (index.Index, error) {
	var (
		idx *index.MemoryIndex
		err error
	)
	if a.cfg.Index == config.IndexSource {
		idx, err = index.Scan(ctx, a.processorConfig(patterns))
	} else {
		idx, err = index.FromManifests(root)
	}
	if err != nil {
		return nil, err
	}
	a.log.Debug("index loaded", "mode", a.cfg.Index, "annotations", idx.Len())
	return idx, nil
}

func (a *app) resolver(patterns []string) orm.ArtifactResolver {
	if a.cfg.Resolver == config.ResolverTool {
		return orm.ToolResolver()
	}
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	r := orm.ModuleResolver("", a.cfg.IncludeTests, patterns...)
	r.OutputDir = a.cfg.OutputDir
	return r
}

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
)
