package engine

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bsaid97/go-boundary-fixer/handlers"
	"github.com/bsaid97/go-boundary-fixer/utils"
)

// Command is one parsed engine invocation: read a file, run steps in the
// order given, write the result.
type Command struct {
	Input        string
	NameProperty string
	Steps        []Step
	Output       *Output
}

type Output struct {
	Path      string
	Precision float64
	Gzip      bool
}

// Step is a single transformation applied to the loaded collection.
type Step interface {
	Name() string
	Apply(fc *utils.FeatureCollection, result *Result) error
}

type RepairStep struct{}

func (RepairStep) Name() string { return "repair" }

func (RepairStep) Apply(fc *utils.FeatureCollection, result *Result) error {
	report, err := handlers.RepairRegions(fc.Regions)
	if err != nil {
		return err
	}
	result.Repair = &report
	return nil
}

type DissolveStep struct {
	Options handlers.DissolveOptions
}

func (DissolveStep) Name() string { return "dissolve2" }

func (s DissolveStep) Apply(fc *utils.FeatureCollection, result *Result) error {
	regions, report, err := handlers.Dissolve(fc.Regions, s.Options)
	if err != nil {
		return err
	}
	fc.Regions = regions
	fc.NameProperty = s.Options.Fields[0]
	result.Dissolve = &report
	return nil
}

type SimplifyStep struct {
	Options handlers.SimplifyOptions
}

func (SimplifyStep) Name() string { return "simplify" }

func (s SimplifyStep) Apply(fc *utils.FeatureCollection, result *Result) error {
	report, err := handlers.Simplify(fc.Regions, s.Options)
	if err != nil {
		return err
	}
	result.Simplify = &report
	return nil
}

// FilterFieldsStep keeps only the listed properties.
type FilterFieldsStep struct {
	Fields []string
}

func (FilterFieldsStep) Name() string { return "filter-fields" }

func (s FilterFieldsStep) Apply(fc *utils.FeatureCollection, result *Result) error {
	handlers.FilterFields(fc.Regions, s.Fields)
	if fc.NameProperty != "" && !slices.Contains(s.Fields, fc.NameProperty) {
		fc.NameProperty = ""
	}
	return nil
}

// RenameFieldsStep renames properties. The name property follows its field.
type RenameFieldsStep struct {
	Renames []handlers.FieldRename
}

func (RenameFieldsStep) Name() string { return "rename-fields" }

func (s RenameFieldsStep) Apply(fc *utils.FeatureCollection, result *Result) error {
	handlers.RenameFields(fc.Regions, s.Renames)
	for _, rename := range s.Renames {
		if rename.From == fc.NameProperty {
			fc.NameProperty = rename.To
			break
		}
	}
	return nil
}

// FilterPrefixStep drops regions whose Field does not start with one of
// Prefixes.
type FilterPrefixStep struct {
	Field    string
	Prefixes []string
}

func (FilterPrefixStep) Name() string { return "filter-prefix" }

func (s FilterPrefixStep) Apply(fc *utils.FeatureCollection, result *Result) error {
	kept, dropped := handlers.FilterByPrefix(fc.Regions, s.Field, s.Prefixes)
	fc.Regions = kept
	result.Filtered += dropped
	return nil
}

// Parse reads a mapshaper-style command line, for example
//
//	-i in.geojson -dissolve2 fields=parent gap-fill-area=5km2 allow-overlaps -o out.geojson
//
// Steps are -repair, -dissolve2, -simplify, -filter-prefix, -rename-fields
// and -filter-fields. Values may be wrapped in single or double quotes.
// Exactly one -i is required. Without -o the input file is overwritten.
func Parse(commands string) (*Command, error) {
	tokens, err := tokenize(commands)
	if err != nil {
		return nil, err
	}

	cmd := &Command{}
	for len(tokens) > 0 {
		name := tokens[0]
		if !strings.HasPrefix(name, "-") {
			return nil, fmt.Errorf("expected a command, got %q", name)
		}
		args := tokens[1:]
		n := 0
		for n < len(args) && !isCommand(args[n]) {
			n++
		}
		args, tokens = args[:n], args[n:]

		switch name {
		case "-i":
			if cmd.Input != "" {
				return nil, fmt.Errorf("-i given more than once")
			}
			if err := parseInput(cmd, args); err != nil {
				return nil, err
			}
		case "-repair":
			if len(args) > 0 {
				return nil, fmt.Errorf("-repair takes no options, got %v", args)
			}
			cmd.Steps = append(cmd.Steps, RepairStep{})
		case "-dissolve2", "-dissolve":
			step, err := parseDissolve(args)
			if err != nil {
				return nil, err
			}
			cmd.Steps = append(cmd.Steps, step)
		case "-simplify":
			step, err := parseSimplify(args)
			if err != nil {
				return nil, err
			}
			cmd.Steps = append(cmd.Steps, step)
		case "-filter-fields":
			step, err := parseFilterFields(args)
			if err != nil {
				return nil, err
			}
			cmd.Steps = append(cmd.Steps, step)
		case "-rename-fields":
			step, err := parseRenameFields(args)
			if err != nil {
				return nil, err
			}
			cmd.Steps = append(cmd.Steps, step)
		case "-filter-prefix":
			step, err := parseFilterPrefix(args)
			if err != nil {
				return nil, err
			}
			cmd.Steps = append(cmd.Steps, step)
		case "-o":
			if cmd.Output != nil {
				return nil, fmt.Errorf("-o given more than once")
			}
			out, err := parseOutput(args)
			if err != nil {
				return nil, err
			}
			cmd.Output = out
		default:
			return nil, fmt.Errorf("unknown command %s", name)
		}
	}

	if cmd.Input == "" {
		return nil, fmt.Errorf("missing -i")
	}
	if cmd.Output == nil {
		cmd.Output = &Output{Path: cmd.Input}
	}
	return cmd, nil
}

func isCommand(token string) bool {
	if !strings.HasPrefix(token, "-") || len(token) < 2 {
		return false
	}
	_, err := strconv.ParseFloat(token, 64)
	return err != nil
}

// tokenize splits on whitespace. Runs inside double or single quotes stay
// together; there are no escapes, so a value holding one kind of quote is
// wrapped in the other.
func tokenize(s string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	var quote rune
	started := false
	for _, r := range s {
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			started = true
		case r == ' ' || r == '\t' || r == '\n':
			if started {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", s)
	}
	if started {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

// Quote wraps value so tokenize reads it back as one token. Values holding
// both quote characters cannot be written.
func Quote(value string) (string, error) {
	switch {
	case !strings.ContainsRune(value, '"'):
		return `"` + value + `"`, nil
	case !strings.ContainsRune(value, '\''):
		return "'" + value + "'", nil
	}
	return "", fmt.Errorf("%q holds both quote characters", value)
}

func splitOption(arg string) (string, string, bool) {
	key, value, ok := strings.Cut(arg, "=")
	return key, value, ok
}

func parseInput(cmd *Command, args []string) error {
	for _, arg := range args {
		key, value, ok := splitOption(arg)
		switch {
		case !ok && cmd.Input == "":
			cmd.Input = arg
		case ok && key == "name":
			cmd.NameProperty = value
		default:
			return fmt.Errorf("-i: unexpected option %q", arg)
		}
	}
	if cmd.Input == "" {
		return fmt.Errorf("-i needs a file")
	}
	return nil
}

func parseDissolve(args []string) (DissolveStep, error) {
	step := DissolveStep{}
	for _, arg := range args {
		key, value, ok := splitOption(arg)
		switch {
		case ok && key == "fields":
			for _, field := range strings.Split(value, ",") {
				if field = strings.TrimSpace(field); field != "" {
					step.Options.Fields = append(step.Options.Fields, field)
				}
			}
		case ok && key == "gap-fill-area":
			area, err := ParseArea(value)
			if err != nil {
				return step, fmt.Errorf("-dissolve2: %w", err)
			}
			step.Options.GapFillAreaKm2 = area
		case !ok && arg == "allow-overlaps":
			step.Options.AllowOverlaps = true
		case !ok && len(step.Options.Fields) == 0:
			// mapshaper also accepts the field list positionally.
			step.Options.Fields = strings.Split(arg, ",")
		default:
			return step, fmt.Errorf("-dissolve2: unexpected option %q", arg)
		}
	}
	if len(step.Options.Fields) == 0 {
		return step, fmt.Errorf("-dissolve2 needs fields=")
	}
	return step, nil
}

func parseSimplify(args []string) (SimplifyStep, error) {
	step := SimplifyStep{Options: handlers.SimplifyOptions{Method: handlers.MethodDP}}
	for _, arg := range args {
		key, value, ok := splitOption(arg)
		switch {
		case !ok && (arg == handlers.MethodDP || arg == handlers.MethodVisvalingam):
			step.Options.Method = arg
		case !ok:
			p, err := ParsePercentage(arg)
			if err != nil {
				return step, fmt.Errorf("-simplify: %w", err)
			}
			step.Options.Percentage = p
		case ok && key == "percentage":
			p, err := ParsePercentage(value)
			if err != nil {
				return step, fmt.Errorf("-simplify: %w", err)
			}
			step.Options.Percentage = p
		case ok && key == "interval":
			tolerance, err := strconv.ParseFloat(value, 64)
			if err != nil || tolerance <= 0 {
				return step, fmt.Errorf("-simplify: invalid interval %q", value)
			}
			step.Options.Tolerance = tolerance
		default:
			return step, fmt.Errorf("-simplify: unexpected option %q", arg)
		}
	}
	if step.Options.Percentage == 0 && step.Options.Tolerance == 0 {
		return step, fmt.Errorf("-simplify needs a percentage or interval=")
	}
	return step, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseFilterFields(args []string) (FilterFieldsStep, error) {
	step := FilterFieldsStep{}
	for _, arg := range args {
		key, value, ok := splitOption(arg)
		switch {
		case ok && key == "fields":
			step.Fields = append(step.Fields, splitList(value)...)
		case !ok:
			step.Fields = append(step.Fields, splitList(arg)...)
		default:
			return step, fmt.Errorf("-filter-fields: unexpected option %q", arg)
		}
	}
	if len(step.Fields) == 0 {
		return step, fmt.Errorf("-filter-fields needs a field list")
	}
	return step, nil
}

// parseRenameFields reads mapshaper's new=old pairs, comma separated.
func parseRenameFields(args []string) (RenameFieldsStep, error) {
	step := RenameFieldsStep{}
	for _, arg := range args {
		for _, pair := range splitList(arg) {
			to, from, ok := strings.Cut(pair, "=")
			if !ok || to == "" || from == "" {
				return step, fmt.Errorf("-rename-fields: %q is not new=old", pair)
			}
			step.Renames = append(step.Renames, handlers.FieldRename{From: from, To: to})
		}
	}
	if len(step.Renames) == 0 {
		return step, fmt.Errorf("-rename-fields needs new=old pairs")
	}
	return step, nil
}

func parseFilterPrefix(args []string) (FilterPrefixStep, error) {
	step := FilterPrefixStep{}
	for _, arg := range args {
		key, value, ok := splitOption(arg)
		switch {
		case ok && key == "field":
			step.Field = value
		case ok && key == "prefix":
			step.Prefixes = append(step.Prefixes, splitList(value)...)
		default:
			return step, fmt.Errorf("-filter-prefix: unexpected option %q", arg)
		}
	}
	if step.Field == "" || len(step.Prefixes) == 0 {
		return step, fmt.Errorf("-filter-prefix needs field= and prefix=")
	}
	return step, nil
}

func parseOutput(args []string) (*Output, error) {
	out := &Output{}
	for _, arg := range args {
		key, value, ok := splitOption(arg)
		switch {
		case !ok && arg == "gzip":
			out.Gzip = true
		case !ok && out.Path == "":
			out.Path = arg
		case ok && key == "precision":
			precision, err := strconv.ParseFloat(value, 64)
			if err != nil || precision <= 0 {
				return nil, fmt.Errorf("-o: invalid precision %q", value)
			}
			out.Precision = precision
		default:
			return nil, fmt.Errorf("-o: unexpected option %q", arg)
		}
	}
	if out.Path == "" {
		return nil, fmt.Errorf("-o needs a file")
	}
	return out, nil
}

// ParseArea reads an area such as "5km2" or "5000m2" and returns square
// kilometres. A bare number is taken as square metres.
func ParseArea(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	scale := 1e-6
	switch {
	case strings.HasSuffix(s, "km2"):
		s, scale = strings.TrimSuffix(s, "km2"), 1
	case strings.HasSuffix(s, "m2"):
		s = strings.TrimSuffix(s, "m2")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid area %q", s)
	}
	return v * scale, nil
}

// ParsePercentage reads "1.5%" as 0.015. Without a percent sign the value is
// already a fraction.
func ParsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	scale := 1.0
	if strings.HasSuffix(s, "%") {
		s, scale = strings.TrimSuffix(s, "%"), 0.01
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q", s)
	}
	v *= scale
	if v <= 0 || v > 1 {
		return 0, fmt.Errorf("percentage %q out of range", s)
	}
	return v, nil
}
