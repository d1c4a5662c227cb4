// Package export renders compiled frame plans for inspection.
//
// Plans export to Graphviz DOT and from there to SVG or PNG, which the
// CLI and the debug server serve to humans chasing ordering or barrier
// bugs.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/glasswing-gfx/framegraph/pkg/framegraph"
	"github.com/glasswing-gfx/framegraph/pkg/passgraph"
	"github.com/glasswing-gfx/framegraph/pkg/registry"
)

// Options configures plan rendering.
type Options struct {
	// Detailed includes per-access stage and layout detail in node
	// labels. When false, only pass names and barrier counts are shown.
	Detailed bool
}

// ToDOT converts a compiled plan to Graphviz DOT format. Passes become
// nodes in topological order; hazard edges are labeled with the resource
// and hazard kind that produced them. Passes preceded by a barrier are
// drawn with a doubled border.
func ToDOT(plan *framegraph.Plan, reg *registry.Registry, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph frame {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for i, pass := range plan.Graph.Passes {
		label := fmtLabel(i, pass, opts.Detailed)
		attrs := []string{fmt.Sprintf("label=%q", label)}
		if !plan.Sync.Barriers[i].Empty() {
			attrs = append(attrs, "peripheries=2")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", pass.Name, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range plan.Graph.Edges {
		from := plan.Graph.Passes[plan.Graph.IndexOf(e.From)].Name
		to := plan.Graph.Passes[plan.Graph.IndexOf(e.To)].Name
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", from, to, edgeLabel(e, reg))
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(index int, pass *passgraph.Pass, detailed bool) string {
	if !detailed {
		return fmt.Sprintf("%d: %s", index, pass.Name)
	}

	parts := []string{fmt.Sprintf("%d: %s [%s]", index, pass.Name, pass.Queue)}
	for _, a := range pass.Accesses {
		line := fmt.Sprintf("%s res %d @ %s", a.Mode, a.Resource, a.Stage)
		if a.Layout != 0 {
			line += fmt.Sprintf(" (%s)", a.Layout)
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n")
}

func edgeLabel(e passgraph.Edge, reg *registry.Registry) string {
	kind := map[passgraph.HazardKind]string{
		passgraph.ReadAfterWrite:  "RAW",
		passgraph.WriteAfterWrite: "WAW",
		passgraph.WriteAfterRead:  "WAR",
		passgraph.Explicit:        "explicit",
	}[e.Kind]

	if e.Resource == registry.InvalidHandle {
		return kind
	}
	name := fmt.Sprintf("res %d", e.Resource)
	if reg != nil {
		if res, err := reg.Lookup(e.Resource); err == nil {
			name = res.Name
		}
	}
	return fmt.Sprintf("%s %s", kind, name)
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	return render(dot, graphviz.SVG)
}

// RenderPNG renders a DOT graph to PNG using Graphviz.
func RenderPNG(dot string) ([]byte, error) {
	return render(dot, graphviz.PNG)
}

func render(dot string, format graphviz.Format) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
