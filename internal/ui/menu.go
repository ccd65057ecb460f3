// Package ui is the interactive console of the pipeline: a numbered stage menu and small
// prompt helpers with coloured output.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Devyash0601/WGAST-test/internal/dataset"
	"github.com/Devyash0601/WGAST-test/internal/delivery"
	"github.com/Devyash0601/WGAST-test/internal/properties"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"gopkg.in/yaml.v2"
)

var errExit = errors.New("exit")

type menuOption struct {
	title   string
	handler func() error
}

// ShowMenu displays the main menu and runs the chosen stages until the user exits or stdin
// is closed.
func ShowMenu(ctx context.Context, p *delivery.Pipeline) {
	menuOptions := []menuOption{
		{"Acquire imagery for the dates every sensor shares", stage(ctx, p, delivery.StageAcquire)},
		{"Build gap-filled MODIS/Landsat/Sentinel triples", stage(ctx, p, delivery.StageTriple)},
		{"Assemble the train and test pair folders", stage(ctx, p, delivery.StageDataset)},
		{"Train the fusion model (resumes from the last checkpoint)", stage(ctx, p, delivery.StageTrain)},
		{"Run the full pipeline", runAll(ctx, p)},
		{"View the planned (t1, t2) pairs", func() error { return ShowPairs(p.Config) }},
		{"View the last dataset assembly report", func() error { return ShowReport(p.Config) }},
		{"View the current configuration", func() error { return ShowConfig(p.Config) }},
		{"Render previews of a saved triple", func() error { return previewTriple(p) }},
		{"Clear the catalog search cache", func() error { return clearCache(p) }},
		{"Exit the application", func() error { fmt.Fprintln(stdout, "Exiting..."); return errExit }},
	}

	for {
		fmt.Fprintf(stdout, "%s===================%s\n", ColorBlue, ColorReset)
		for i, opt := range menuOptions {
			fmt.Fprintf(stdout, "%s%d. %s%s\n", ColorBlue, i+1, opt.title, ColorReset)
		}

		choice, err := ReadInt("Please enter your choice: ", 1, len(menuOptions))
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			PrintError(err.Error())
			continue
		}

		err = menuOptions[choice-1].handler()
		if errors.Is(err, errExit) {
			return
		}
		if err != nil {
			PrintError(err.Error())
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func stage(ctx context.Context, p *delivery.Pipeline, name string) func() error {
	return func() error {
		if err := p.Run(ctx, name); err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("Stage %s finished successfully!", name))
		return nil
	}
}

func runAll(ctx context.Context, p *delivery.Pipeline) func() error {
	return func() error {
		PrintWarning("Every stage runs in order. Acquisition can take hours for long date ranges.")
		if !Confirm("Continue?") {
			return nil
		}
		if err := p.Run(ctx, delivery.StageAll); err != nil {
			return err
		}
		PrintSuccess("Pipeline finished successfully!")
		return nil
	}
}

func previewTriple(p *delivery.Pipeline) error {
	date, err := ReadDate("Enter the triple date (YYYY-MM-DD): ")
	if err != nil {
		return err
	}
	paths, err := p.PreviewTriple(date)
	if err != nil {
		return err
	}
	for _, path := range paths {
		PrintSuccess(fmt.Sprintf("Preview saved to %s", path))
	}
	return nil
}

func clearCache(p *delivery.Pipeline) error {
	if !Confirm("Remove every cached catalog search?") {
		return nil
	}
	dir, err := p.ClearCache()
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Catalog cache cleared in %s", dir))
	return nil
}

// ShowPairs prints the pairs saved by the last dataset run.
func ShowPairs(cfg *properties.Config) error {
	pairs, err := temporal.LoadPairs(properties.Resolve(cfg.Paths.Pairs))
	if err != nil {
		return fmt.Errorf("no pairs planned yet: %w", err)
	}
	train, test := dataset.Split(pairs, cfg.Dataset.SplitIndex)
	fmt.Fprintf(stdout, "%s\n%d pairs (%d train, %d test):%s\n", ColorGreen, len(pairs), len(train), len(test), ColorReset)
	for i, p := range pairs {
		group := dataset.TrainDir
		if i >= len(train) {
			group = dataset.TestDir
		}
		fmt.Fprintf(stdout, "%s- %-5s %s%s\n", ColorGreen, group, p, ColorReset)
	}
	return nil
}

// ShowReport prints the rows of the last assembly report.
func ShowReport(cfg *properties.Config) error {
	rows, err := dataset.ReadReport(properties.Resolve(cfg.Paths.AssemblyReport))
	if err != nil {
		return fmt.Errorf("failed to read assembly report: %w", err)
	}
	if len(rows) == 0 {
		PrintWarning("The assembly report is empty.")
		return nil
	}
	for _, r := range rows {
		color := ColorGreen
		if r.Status != dataset.StatusWritten {
			color = ColorRed
		}
		line := fmt.Sprintf("%-14s %s -> %s  %2d files  %s", r.Folder, r.T1, r.T2, r.Files, r.Status)
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Fprintf(stdout, "%s%s%s\n", color, line, ColorReset)
	}
	return nil
}

// ShowConfig prints the effective configuration as YAML.
func ShowConfig(cfg *properties.Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s%s%s\n", ColorGreen, strings.TrimRight(string(out), "\n"), ColorReset)
	return nil
}
