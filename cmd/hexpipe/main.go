package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hauke96/sigolo/v2"
	"github.com/urfave/cli/v2"

	"github.com/urbanform/hexpipe/internal/config"
	"github.com/urbanform/hexpipe/internal/grid"
	"github.com/urbanform/hexpipe/internal/pipeline"
)

func main() {
	app := &cli.App{
		Name:  "hexpipe",
		Usage: "Aggregate OSM features onto H3 hex grids for city AOIs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"HEXPIPE_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
			}
			return nil
		},
		Commands: []*cli.Command{
			citiesCommand(),
			resolveCommand(),
			clipCommand(),
			gridCommand(),
			aggregateCommand(),
			runCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		sigolo.Errorf("%v", err)
		os.Exit(1)
	}
}

func load(c *cli.Context) (*pipeline.Pipeline, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg), nil
}

func selectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "aoi",
			Aliases: []string{"a"},
			Usage:   "City display name, repeatable; overrides --group",
		},
		&cli.StringFlag{
			Name:    "group",
			Aliases: []string{"g"},
			Usage:   "Configured AOI group to process",
		},
	}
}

// selectAOIs resolves the --aoi / --group flags into the ordered list of
// city names to process.
func selectAOIs(c *cli.Context, p *pipeline.Pipeline) ([]string, error) {
	if names := c.StringSlice("aoi"); len(names) > 0 {
		return names, nil
	}
	if group := c.String("group"); group != "" {
		return p.Registry().Group(group)
	}
	return nil, cli.Exit("either --aoi or --group is required", 1)
}

// forEachAOI runs one stage over the selected AOIs, carrying on past
// per-AOI failures and reporting them at the end.
func forEachAOI(c *cli.Context, p *pipeline.Pipeline, stage func(ctx context.Context, name string) error) error {
	names, err := selectAOIs(c, p)
	if err != nil {
		return err
	}

	var failed []string
	for _, name := range names {
		if err := stage(c.Context, name); err != nil {
			sigolo.Warnf("skipped %s: %v", name, err)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return cli.Exit(fmt.Sprintf("failed AOIs: %s", strings.Join(failed, ", ")), 1)
	}
	return nil
}

func citiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "cities",
		Usage: "List the configured AOI groups and their cities",
		Action: func(c *cli.Context) error {
			p, err := load(c)
			if err != nil {
				return err
			}
			for _, group := range p.Registry().GroupNames() {
				cities, err := p.Registry().Group(group)
				if err != nil {
					return err
				}
				fmt.Printf("%s (%d):\n", group, len(cities))
				for _, city := range cities {
					fmt.Printf("  %s\n", city)
				}
			}
			return nil
		},
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve AOI boundary polygons and cache them",
		Flags: selectionFlags(),
		Action: func(c *cli.Context) error {
			p, err := load(c)
			if err != nil {
				return err
			}
			return forEachAOI(c, p, func(ctx context.Context, name string) error {
				path, slug, err := p.ResolveAOI(ctx, name)
				if err != nil {
					return err
				}
				sigolo.Infof("%s -> %s (%s)", name, slug, path)
				return nil
			})
		},
	}
}

func clipCommand() *cli.Command {
	return &cli.Command{
		Name:  "clip",
		Usage: "Clip per-AOI OSM extracts from the source snapshot",
		Flags: append(selectionFlags(), &cli.BoolFlag{
			Name:  "force",
			Usage: "Re-clip even when the extract already exists",
		}),
		Action: func(c *cli.Context) error {
			p, err := load(c)
			if err != nil {
				return err
			}
			return forEachAOI(c, p, func(ctx context.Context, name string) error {
				_, err := p.ClipAOI(ctx, name, c.Bool("force"))
				return err
			})
		},
	}
}

func gridCommand() *cli.Command {
	return &cli.Command{
		Name:  "grid",
		Usage: "Generate per-AOI hex grids, optionally merged and exported",
		Flags: append(selectionFlags(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Regenerate even when the grid already exists",
			},
			&cli.BoolFlag{
				Name:  "merge",
				Usage: "Combine the selected AOIs' grids into the merged grid",
			},
			&cli.StringFlag{
				Name:  "csv",
				Usage: "Also export the merged grid to this CSV path",
			},
		),
		Action: func(c *cli.Context) error {
			p, err := load(c)
			if err != nil {
				return err
			}
			if err := forEachAOI(c, p, func(ctx context.Context, name string) error {
				_, err := p.GridAOI(ctx, name, c.Bool("force"))
				return err
			}); err != nil {
				return err
			}

			if !c.Bool("merge") && c.String("csv") == "" {
				return nil
			}
			names, err := selectAOIs(c, p)
			if err != nil {
				return err
			}
			merged, err := p.MergeGrids(c.Context, names)
			if err != nil {
				return err
			}
			if csvPath := c.String("csv"); csvPath != "" {
				cells, err := grid.Read(merged)
				if err != nil {
					return err
				}
				if err := grid.ExportCSV(csvPath, cells); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func aggregateCommand() *cli.Command {
	return &cli.Command{
		Name:  "aggregate",
		Usage: "Join extracted features onto the hex grids",
		Flags: selectionFlags(),
		Action: func(c *cli.Context) error {
			p, err := load(c)
			if err != nil {
				return err
			}
			return forEachAOI(c, p, func(ctx context.Context, name string) error {
				_, err := p.AggregateAOI(ctx, name)
				return err
			})
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the full pipeline for the selected AOIs",
		Flags: selectionFlags(),
		Action: func(c *cli.Context) error {
			p, err := load(c)
			if err != nil {
				return err
			}
			names, err := selectAOIs(c, p)
			if err != nil {
				return err
			}
			results := p.RunBatch(c.Context, names)
			if failed := pipeline.Failed(results); len(failed) > 0 {
				return cli.Exit(fmt.Sprintf("failed AOIs: %s", strings.Join(failed, ", ")), 1)
			}
			return nil
		},
	}
}
