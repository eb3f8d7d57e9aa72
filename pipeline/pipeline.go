// Package pipeline chains repair, association, dissolution and
// simplification. Stages hand over through files in the work directory and
// each one finishes before the next starts.
package pipeline

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bsaid97/go-boundary-fixer/engine"
	"github.com/bsaid97/go-boundary-fixer/handlers"
	"github.com/bsaid97/go-boundary-fixer/utils"
)

const (
	RepairedFile   = "repaired.geojson"
	AssociatedFile = "associated.geojson"
	DissolvedFile  = "dissolved.geojson"
)

type Options struct {
	// Progress receives spinners while engine tasks run. Nil disables them.
	Progress io.Writer
}

// Summary collects what each stage reported.
type Summary struct {
	Repair      handlers.RepairReport
	Association handlers.AssociationReport
	Dissolve    *engine.Result
	Simplify    *engine.Result
	Children    *engine.Result
	Coverage    *handlers.CoverageReport
	Outputs     []string
}

// Run executes the whole consolidation described by cfg.
func Run(cfg utils.Config, opts Options) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}
	eng := engine.New()
	logger := utils.L()

	repaired := filepath.Join(cfg.WorkDir, RepairedFile)
	associated := filepath.Join(cfg.WorkDir, AssociatedFile)
	dissolved := filepath.Join(cfg.WorkDir, DissolvedFile)

	logger.Info("=== stage 1: repair ===", "input", cfg.Children.Path)
	report, err := Repair(cfg, cfg.Children.Path, repaired)
	if err != nil {
		return summary, fmt.Errorf("repair: %w", err)
	}
	summary.Repair = report

	logger.Info("=== stage 2: associate ===", "parents", cfg.Parents.Path)
	association, err := Associate(cfg, repaired, associated)
	if err != nil {
		return summary, fmt.Errorf("associate: %w", err)
	}
	summary.Association = association

	logger.Info("=== stage 3: dissolve ===")
	command, err := DissolveCommand(cfg, associated, dissolved)
	if err != nil {
		return summary, fmt.Errorf("dissolve: %w", err)
	}
	summary.Dissolve, err = await(eng.RunCommands(command), "dissolving", opts.Progress)
	if err != nil {
		return summary, fmt.Errorf("dissolve: %w", err)
	}

	logger.Info("=== stage 4: simplify ===")
	command, err = SimplifyCommand(cfg, dissolved, cfg.Association.ParentField, cfg.Output.Path)
	if err != nil {
		return summary, fmt.Errorf("simplify: %w", err)
	}
	summary.Simplify, err = await(eng.RunCommands(command), "simplifying", opts.Progress)
	if err != nil {
		return summary, fmt.Errorf("simplify: %w", err)
	}

	if cfg.Output.ChildrenPath != "" {
		logger.Info("=== simplifying children ===", "output", cfg.Output.ChildrenPath)
		command, err = ChildrenCommand(cfg)
		if err != nil {
			return summary, fmt.Errorf("simplify children: %w", err)
		}
		summary.Children, err = await(eng.RunCommands(command), "simplifying children", opts.Progress)
		if err != nil {
			return summary, fmt.Errorf("simplify children: %w", err)
		}
	}

	if err := finish(cfg, summary); err != nil {
		return summary, err
	}

	logger.Info("pipeline finished", "outputs", strings.Join(summary.Outputs, ","), "duration", time.Since(start).Round(time.Millisecond).String())
	return summary, nil
}

// finish runs the optional coverage check and packaging on the outputs.
// Gzip goes last since it removes the uncompressed files.
func finish(cfg utils.Config, summary *Summary) error {
	outputs := []string{cfg.Output.Path}
	if cfg.Output.ChildrenPath != "" {
		outputs = append(outputs, cfg.Output.ChildrenPath)
	}

	if cfg.Output.Coverage || cfg.Output.Shapefile {
		fc, err := utils.ReadFeatureCollection(cfg.Output.Path, cfg.Association.ParentField)
		if err != nil {
			return err
		}
		if cfg.Output.Coverage {
			tolerance := 1.0
			if handlers.IsGeographic(fc.Regions) {
				tolerance = utils.CalculateWGS84ToleranceFromMeters(1)
			}
			report, err := handlers.ValidateCoverage(fc.Regions, tolerance)
			if err != nil {
				return fmt.Errorf("coverage: %w", err)
			}
			summary.Coverage = &report
		}
		if cfg.Output.Shapefile {
			zipPath, err := utils.WriteShapefileZip(cfg.Output.Path, fc)
			if err != nil {
				return err
			}
			summary.Outputs = append(summary.Outputs, zipPath)
		}
	}

	for _, output := range outputs {
		if !cfg.Output.Gzip {
			summary.Outputs = append(summary.Outputs, output)
			continue
		}
		compressed, err := utils.GzipFile(output)
		if err != nil {
			return err
		}
		summary.Outputs = append(summary.Outputs, compressed)
	}
	return nil
}

// Repair reads the children layer at input, repairs it and writes output.
// With cfg.Repair off the layer is copied through unchanged.
func Repair(cfg utils.Config, input, output string) (handlers.RepairReport, error) {
	fc, err := utils.ReadFeatureCollection(input, cfg.Children.NameProperty)
	if err != nil {
		return handlers.RepairReport{}, err
	}
	report := handlers.RepairReport{Total: len(fc.Regions)}
	if cfg.Repair {
		report, err = handlers.RepairRegions(fc.Regions)
		if err != nil {
			return report, err
		}
	}
	if err := utils.WriteFeatureCollection(output, fc); err != nil {
		return report, err
	}
	utils.L().Info("repair finished", "regions", report.Total, "repaired", report.Repaired, "degenerate", report.Degenerate, "output", output)
	return report, nil
}

// Associate links the children at childrenPath to the configured parents and
// writes the surviving children to output.
func Associate(cfg utils.Config, childrenPath, output string) (handlers.AssociationReport, error) {
	parents, err := utils.ReadFeatureCollection(cfg.Parents.Path, cfg.Parents.NameProperty)
	if err != nil {
		return handlers.AssociationReport{}, err
	}
	children, err := utils.ReadFeatureCollection(childrenPath, cfg.Children.NameProperty)
	if err != nil {
		return handlers.AssociationReport{}, err
	}

	kept, report := handlers.Associate(parents.Regions, children.Regions, AssociationOptions(cfg))
	children.Regions = kept
	if err := utils.WriteFeatureCollection(output, children); err != nil {
		return report, err
	}
	return report, nil
}

func AssociationOptions(cfg utils.Config) handlers.AssociationOptions {
	return handlers.AssociationOptions{
		ChildrenProperty: cfg.Parents.ChildrenProperty,
		Delimiter:        cfg.Association.Delimiter,
		ParentField:      cfg.Association.ParentField,
		ChildNamesField:  cfg.Association.ChildNamesField,
		CopyProperties:   cfg.Association.CopyProperties,
	}
}

// DissolveCommand builds the engine command for stage 3.
func DissolveCommand(cfg utils.Config, input, output string) (string, error) {
	c := &commandBuilder{}
	c.add("-i").quoted(input).option("name", cfg.Children.NameProperty)
	c.add("-dissolve2").option("fields", cfg.Association.ParentField)
	if cfg.Dissolve.GapFillArea != "" {
		c.add("gap-fill-area=" + cfg.Dissolve.GapFillArea)
	}
	if cfg.Dissolve.AllowOverlaps {
		c.add("allow-overlaps")
	}
	c.add("-o").quoted(output)
	return c.String()
}

// SimplifyCommand builds the engine command that simplifies input into
// output, trimming precision when configured.
func SimplifyCommand(cfg utils.Config, input, nameProperty, output string) (string, error) {
	return simplifyCommand(cfg, input, nameProperty, output, utils.CleanupConfig{})
}

// ChildrenCommand builds the command for the simplified children layer. The
// configured cleanup runs before simplification so dropped regions never
// reach it.
func ChildrenCommand(cfg utils.Config) (string, error) {
	return simplifyCommand(cfg, cfg.Children.Path, cfg.Children.NameProperty, cfg.Output.ChildrenPath, cfg.Output.ChildrenCleanup)
}

func simplifyCommand(cfg utils.Config, input, nameProperty, output string, cleanup utils.CleanupConfig) (string, error) {
	c := &commandBuilder{}
	c.add("-i").quoted(input)
	if nameProperty != "" {
		c.option("name", nameProperty)
	}
	if cleanup.FilterField != "" {
		c.add("-filter-prefix").option("field", cleanup.FilterField).option("prefix", strings.Join(cleanup.FilterPrefixes, ","))
	}
	if len(cleanup.RenameFields) > 0 {
		c.add("-rename-fields").quoted(strings.Join(cleanup.RenameFields, ","))
	}
	if len(cleanup.KeepFields) > 0 {
		c.add("-filter-fields").quoted(strings.Join(cleanup.KeepFields, ","))
	}
	c.add("-simplify", cfg.Simplify.Percentage)
	if cfg.Simplify.Method != "" {
		c.add(cfg.Simplify.Method)
	}
	c.add("-o").quoted(output)
	if cfg.Output.Precision > 0 {
		c.add(fmt.Sprintf("precision=%g", cfg.Output.Precision))
	}
	return c.String()
}

// commandBuilder joins command tokens, quoting the ones that come from
// configuration. The first value that cannot be quoted fails the build.
type commandBuilder struct {
	parts []string
	err   error
}

func (c *commandBuilder) add(tokens ...string) *commandBuilder {
	c.parts = append(c.parts, tokens...)
	return c
}

func (c *commandBuilder) quoted(value string) *commandBuilder {
	q, err := engine.Quote(value)
	if err != nil && c.err == nil {
		c.err = err
	}
	return c.add(q)
}

func (c *commandBuilder) option(key, value string) *commandBuilder {
	q, err := engine.Quote(value)
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("%s: %w", key, err)
	}
	return c.add(key + "=" + q)
}

func (c *commandBuilder) String() (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return strings.Join(c.parts, " "), nil
}

func await(task *engine.Task, label string, progress io.Writer) (*engine.Result, error) {
	utils.AwaitWithSpinner(progress, label, task.Done())
	return task.Wait()
}
