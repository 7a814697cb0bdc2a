package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/entitybug/build"
	"github.com/example/entitybug/deployment"
	"github.com/example/entitybug/index"
	"github.com/example/entitybug/orm"
	"github.com/example/entitybug/processor"
)

func generateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate [packages...]",
		Short: "Generate entities for @entitybug.GenerateEntity annotations",
		Long: `Generate entities for every type annotated with @entitybug.GenerateEntity
in the given packages (default ./...).

Each generated entity is written next to the package's sources, or under
--output-dir, together with the package's entitybug.manifest.yaml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.processorConfig(args)
			cfg.Processors = processor.AllRegisteredProcessors()
			if err := cfg.Execute(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s generation complete\n", okMark)
			return nil
		},
	}
}

func discoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover [root]",
		Short: "List the generated entities that a build would register",
		Long: `Discover generated entities and print their registrations.

With --index manifest (set in the configuration file or ENTITYBUG_INDEX),
manifests under root (default .) are read. With --index source, the packages
under root are scanned.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			idx, err := a.loadIndex(cmd.Context(), root, []string{strings.TrimSuffix(root, "/") + "/..."})
			if err != nil {
				return err
			}
			var models build.Producer[orm.AdditionalModel]
			deployment.RegisterGeneratedEntities(idx, &models, a.log.Logger)

			items := models.Items()
			if len(items) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no generated entities found\n")
				return nil
			}
			sort.Slice(items, func(i, j int) bool { return items[i].ClassName < items[j].ClassName })
			for _, m := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  {%s}\n", m.ClassName, strings.Join(m.PersistenceUnits, ", "))
			}
			return nil
		},
	}
}

func buildCmd(a *app) *cobra.Command {
	var (
		root         string
		skipGenerate bool
	)

	cmd := &cobra.Command{
		Use:   "build [packages...]",
		Short: "Generate, discover, register and enhance entities",
		Long: `Run the whole build for the given packages (default ./...):

  1. generate entities for @entitybug.GenerateEntity annotations
  2. index generated entities (manifests under --root, or package sources)
  3. register every generated entity with its persistence unit
  4. enhance the registered entities and create their tables

With --resolver tool (or resolver: tool in the configuration) the enhancement
only sees the tool's own packages, so it fails for every application type.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				idx      index.Index
				features build.Producer[build.FeatureItem]
				enhanced []orm.EntityModel
			)
			p := &build.Pipeline{Logger: a.log.Logger}
			if !skipGenerate {
				p.Add("generate", func(ctx context.Context) error {
					cfg := a.processorConfig(args)
					cfg.Processors = processor.AllRegisteredProcessors()
					return cfg.Execute(ctx)
				})
			}
			p.Add("index", func(ctx context.Context) error {
				indexRoot := root
				if indexRoot == "" {
					indexRoot = "."
					if a.cfg.OutputDir != "" {
						indexRoot = a.cfg.OutputDir
					}
				}
				var err error
				idx, err = a.loadIndex(ctx, indexRoot, args)
				return err
			})
			p.Steps = append(p.Steps, lazySteps(&idx, a, args, &features, &enhanced)...)

			store, err := orm.NewStore(a.cfg.Store.ORM())
			if err != nil {
				return err
			}
			defer store.Close()
			p.Add("migrate", func(ctx context.Context) error {
				return store.Migrate(ctx, enhanced)
			})

			out := cmd.OutOrStdout()
			if err := p.Run(cmd.Context()); err != nil {
				fmt.Fprintf(out, "%s build failed\n", failMark)
				if errors.Is(err, orm.ErrArtifactNotFound) {
					fmt.Fprintf(out, "  %s\n", color.New(color.FgYellow).Sprint("the enhancement could not read a registered entity; check the resolver scope"))
				}
				return err
			}
			for _, f := range features.Items() {
				fmt.Fprintf(out, "feature: %s\n", f.Name)
			}
			for _, m := range enhanced {
				fmt.Fprintf(out, "%s %s -> table %s in {%s}\n", okMark, m.ClassName, m.Table, strings.Join(m.PersistenceUnits, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Directory searched for manifests (default: --output-dir or .)")
	cmd.Flags().BoolVar(&skipGenerate, "skip-generate", false, "Use previously generated entities")
	return cmd
}

// lazySteps returns the feature's steps, bound to the index once the index
// step has run.
func lazySteps(idx *index.Index, a *app, patterns []string, features *build.Producer[build.FeatureItem], enhanced *[]orm.EntityModel) []build.Step {
	steps := deployment.Steps(indexRef{idx}, a.resolver(patterns), a.log.Logger, features, enhanced)
	for i := range steps {
		steps[i].Name = fmt.Sprintf("%s/%s", deployment.FeatureName, steps[i].Name)
	}
	return steps
}

// indexRef is an index.Index that forwards to an index set later.
type indexRef struct {
	idx *index.Index
}

func (r indexRef) Annotations(name index.DotName) []index.AnnotationInstance {
	if *r.idx == nil {
		return nil
	}
	return (*r.idx).Annotations(name)
}
