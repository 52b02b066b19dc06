// Package dot is the Graph parsing entry point:
// it turns DOT source into an already-validated graph.Graph, the form
// the Pipeline Runner consumes. The grammar itself is out
// of scope; this package only wires a real DOT parser
// (github.com/awalterschulze/gographviz, pulled from the example pack's
// own dependency surface) into graph.Graph's typed attribute model.
package dot

import (
	"strconv"

	"github.com/awalterschulze/gographviz"

	"github.com/forgehq/forge/internal/graph"
	"github.com/forgehq/forge/internal/models"
)

// Parse parses DOT source into a validated graph.Graph. Node/edge/graph
// attribute literals are typed by inference (integer, float, boolean,
// duration, else string), since DOT itself carries no type information.
func Parse(source []byte) (*graph.Graph, []models.Diagnostic, error) {
	ast, err := gographviz.ParseString(string(source))
	if err != nil {
		return nil, nil, models.Wrap(models.Kind("Dot.ParseFailed"), err)
	}
	g := gographviz.NewGraph()
	if err := gographviz.Analyse(ast, g); err != nil {
		return nil, nil, models.Wrap(models.Kind("Dot.ParseFailed"), err)
	}

	nodes := make(map[string]graph.Node, len(g.Nodes.Nodes))
	for _, n := range g.Nodes.Nodes {
		nodes[n.Name] = graph.Node{ID: n.Name, Attrs: attrsOf(n.Attrs)}
	}

	edges := make([]graph.Edge, 0, len(g.Edges.Edges))
	for _, e := range g.Edges.Edges {
		edges = append(edges, graph.Edge{From: e.Src, To: e.Dst, Attrs: attrsOf(e.Attrs)})
	}

	gg := graph.New(g.Name, attrsOf(g.Attrs), nodes, edges)
	diags, verr := graph.Validate(gg)
	if verr != nil {
		return gg, diags, verr
	}
	return gg, diags, nil
}

// attrsOf converts a gographviz attribute map (all string-valued) into
// a typed graph.Attrs, inferring each literal's kind.
func attrsOf(raw gographviz.Attrs) graph.Attrs {
	a := make(graph.Attrs, len(raw))
	for k, v := range raw {
		a[string(k)] = inferAttr(v)
	}
	return a
}

// inferAttr picks the narrowest graph.AttrValue a DOT literal fits:
// boolean, duration ("<n>{ms|s|m|h|d}"), integer, float, else string.
func inferAttr(literal string) graph.AttrValue {
	unquoted := literal
	if len(unquoted) >= 2 && unquoted[0] == '"' && unquoted[len(unquoted)-1] == '"' {
		unquoted = unquoted[1 : len(unquoted)-1]
	}
	switch unquoted {
	case "true":
		return graph.BoolAttr(true)
	case "false":
		return graph.BoolAttr(false)
	}
	if d, err := graph.ParseDuration(unquoted); err == nil {
		return graph.DurationAttr(d)
	}
	if i, err := strconv.ParseInt(unquoted, 10, 64); err == nil {
		return graph.IntegerAttr(i)
	}
	if f, err := strconv.ParseFloat(unquoted, 64); err == nil {
		return graph.FloatAttr(f)
	}
	return graph.StringAttr(unquoted)
}
