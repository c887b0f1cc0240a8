package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dphaener/ddmark/internal/cli/ui"
	"github.com/dphaener/ddmark/internal/compiler/flow"
	"github.com/dphaener/ddmark/internal/compiler/inference"
	"github.com/dphaener/ddmark/internal/compiler/ir"
	"github.com/dphaener/ddmark/internal/compiler/parser"
	"github.com/dphaener/ddmark/internal/compiler/scanner"
	"github.com/dphaener/ddmark/internal/compiler/schema"
	"github.com/dphaener/ddmark/pkg/diagram"
)

// Inspection is what inspect prints: the structure one diagram kind reads
// from a document. Exactly one of Model, Schema and Flow is set.
type Inspection struct {
	File     string          `json:"file,omitempty" yaml:"file,omitempty"`
	Kind     diagram.Kind    `json:"kind" yaml:"kind"`
	Model    *ir.ParseResult `json:"model,omitempty" yaml:"model,omitempty"`
	Inferred inference.Stats `json:"inferred,omitempty" yaml:"inferred,omitempty"`
	Schema   *schema.Schema  `json:"schema,omitempty" yaml:"schema,omitempty"`
	Flow     *flow.Flow      `json:"flow,omitempty" yaml:"flow,omitempty"`
}

// Inspect extracts the structure kind reads from markdown. Class documents
// yield the inferred domain model, er documents the table schema, and flow
// and robustness documents the step structure.
func Inspect(kind diagram.Kind, markdown string) *Inspection {
	out := &Inspection{Kind: kind}
	switch kind {
	case diagram.KindER:
		out.Schema = inspectSchema(markdown)
	case diagram.KindFlow, diagram.KindRobustness:
		out.Flow = flow.Parse(markdown)
	default:
		out.Model = parser.Parse(markdown)
		out.Inferred = inference.Infer(out.Model)
	}
	return out
}

// inspectSchema prefers an author-supplied erDiagram fence the way the er
// emitter does
func inspectSchema(markdown string) *schema.Schema {
	for _, f := range scanner.Fences(markdown) {
		if schema.IsERDiagram(f.Body) {
			return schema.ParseMermaid(f.Body)
		}
	}
	return schema.ParseMarkdown(markdown)
}

// NewInspectCommand creates the inspect command
func NewInspectCommand(opts *GlobalOptions) *cobra.Command {
	var (
		kind   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Show the structure ddmark reads from a document",
		Long: `Show the intermediate structure a diagram is generated from.

Domain model documents print their entities, value objects and aggregates
with inferred relationships; database documents print tables and foreign
keys; operation and use case documents print the main, alternative and
exception flows.

Output formats:
  table  Human-readable summary (default)
  json   Machine-readable JSON
  yaml   Machine-readable YAML`,
		Example: `  ddmark inspect docs/domain-model.md
  ddmark inspect --kind er --format yaml docs/orders-db.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Config()
			if err != nil {
				return err
			}
			markdown, err := readDocument(cmd, args)
			if err != nil {
				return err
			}
			if kind == "" {
				kind = cfg.Render.DefaultKind
			}
			k, err := diagram.ResolveKind(kind, markdown)
			if err != nil {
				return err
			}

			result := Inspect(k, markdown)
			if len(args) > 0 && args[0] != "-" {
				result.File = args[0]
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(result)
			case "yaml":
				encoder := yaml.NewEncoder(out)
				encoder.SetIndent(2)
				if err := encoder.Encode(result); err != nil {
					return err
				}
				return encoder.Close()
			case "table":
				printInspection(out, result, color.NoColor)
				return nil
			default:
				return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Diagram kind whose structure to show (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json or yaml")

	return cmd
}

func printInspection(w io.Writer, in *Inspection, noColor bool) {
	switch {
	case in.Model != nil:
		printModel(w, in, noColor)
	case in.Schema != nil:
		printSchema(w, in.Schema, noColor)
	case in.Flow != nil:
		printFlow(w, in.Flow, noColor)
	}
}

func printModel(w io.Writer, in *Inspection, noColor bool) {
	model := in.Model
	if model.IsEmpty() {
		fmt.Fprint(w, ui.Info("no domain model elements found", noColor))
		return
	}

	ui.Header(w, "Domain model", noColor)
	table := ui.NewTable(w, []string{"ELEMENT", "STEREOTYPE", "ATTRIBUTES", "RELATIONSHIPS"}, noColor)
	for _, e := range model.Entities {
		stereotype := string(e.Stereotype)
		if e.IsAggregateRoot {
			stereotype += " (root)"
		}
		rels := make([]string, 0, len(e.Relationships))
		for _, r := range e.OrderedRelationships() {
			rels = append(rels, fmt.Sprintf("%s %s", r.Kind, r.Target))
		}
		table.AddRow(e.Name, stereotype, strconv.Itoa(len(e.Attributes)), strings.Join(rels, ", "))
	}
	for _, vo := range model.ValueObjects {
		table.AddRow(vo.Name, string(vo.Stereotype()), strconv.Itoa(len(vo.Attributes)), "")
	}
	table.Render()

	if len(model.Aggregates) > 0 {
		fmt.Fprintln(w)
		ui.Header(w, "Aggregates", noColor)
		aggregates := ui.NewTable(w, []string{"AGGREGATE", "ROOT", "MEMBERS"}, noColor)
		for _, a := range model.Aggregates {
			aggregates.AddRow(a.Name, a.Root, strings.Join(a.Members, ", "))
		}
		aggregates.Render()
	}

	if total := in.Inferred.Total(); total > 0 {
		fmt.Fprintln(w)
		kv := ui.NewKeyValueTable(w, noColor)
		kv.AddRow("Inferred relationships", strconv.Itoa(total))
		kv.Render()
	}
}

func printSchema(w io.Writer, s *schema.Schema, noColor bool) {
	if s.IsEmpty() {
		fmt.Fprint(w, ui.Info("no tables found", noColor))
		return
	}

	ui.Header(w, "Tables", noColor)
	table := ui.NewTable(w, []string{"TABLE", "COLUMN", "TYPE", "KEYS", "REFERENCES"}, noColor)
	for _, t := range s.Tables {
		for i, c := range t.Columns {
			name := ""
			if i == 0 {
				name = t.Name
			}
			var keys []string
			if c.PrimaryKey {
				keys = append(keys, "PK")
			}
			if c.ForeignKey {
				keys = append(keys, "FK")
			}
			if c.Unique {
				keys = append(keys, "UK")
			}
			ref := ""
			if c.RefTable != "" {
				ref = c.RefTable
				if c.RefColumn != "" {
					ref += "." + c.RefColumn
				}
			}
			table.AddRow(name, c.Name, c.Type, strings.Join(keys, ","), ref)
		}
	}
	table.Render()

	if len(s.Relationships) > 0 {
		fmt.Fprintln(w)
		ui.Header(w, "Relationships", noColor)
		rels := ui.NewTable(w, []string{"PARENT", "CHILD", "LABEL"}, noColor)
		for _, r := range s.Relationships {
			rels.AddRow(r.Parent, r.Child, r.Label)
		}
		rels.Render()
	}
}

func printFlow(w io.Writer, f *flow.Flow, noColor bool) {
	if f.IsEmpty() {
		fmt.Fprint(w, ui.Info("no flow steps found", noColor))
		return
	}

	if f.Title != "" || len(f.Actors) > 0 {
		kv := ui.NewKeyValueTable(w, noColor)
		if f.Title != "" {
			kv.AddRow("Title", f.Title)
		}
		if len(f.Actors) > 0 {
			kv.AddRow("Actors", strings.Join(f.Actors, ", "))
		}
		kv.Render()
		fmt.Fprintln(w)
	}

	table := ui.NewTable(w, []string{"BRANCH", "AT", "STEPS"}, noColor)
	for _, s := range f.Steps {
		table.AddRow("main", strconv.Itoa(s.Number), s.Text)
	}
	for _, a := range f.Alternatives {
		table.AddRow("alternative: "+a.Condition, strconv.Itoa(a.AtStep), strings.Join(a.Steps, " → "))
	}
	for _, e := range f.Exceptions {
		table.AddRow("exception: "+e.Condition, strconv.Itoa(e.AtStep), strings.Join(e.Steps, " → "))
	}
	table.Render()
}
