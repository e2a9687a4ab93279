// Package graph renders a conversation hierarchy as a Mermaid flowchart.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
)

// Overlay contains session state to visualize on the graph.
type Overlay struct {
	// Stack lists the open element paths, outermost first, as in memory.Snapshot.
	Stack []string
}

// GenerateMermaid produces a Mermaid flowchart of root.
// It applies semantic styling:
//   - Tree: ((Circle))
//   - Branch with a transition: [[Subroutine]]
//   - Branch: [Rectangle]
//
// Nesting is drawn with solid arrows labelled by the trigger, transitions
// with dotted ones. The overlay marks the open elements and the innermost one.
func GenerateMermaid(root *domain.Element, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var walk func(el *domain.Element)
	walk = func(el *domain.Element) {
		for _, child := range el.Branches {
			writeNode(&sb, child)
			if el.Kind != domain.KindRoot {
				writeEdge(&sb, el, child)
			}
			if child.Transition != nil {
				writeTransition(&sb, child, child.Transition)
			}
			walk(child)
		}
	}
	walk(root)

	if overlay != nil && len(overlay.Stack) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps the contrast on light fills in dark themes too.
		sb.WriteString("    classDef open fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for _, p := range overlay.Stack[:len(overlay.Stack)-1] {
			fmt.Fprintf(&sb, "    class %s open;\n", sanitizeMermaidID(p))
		}
		fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.Stack[len(overlay.Stack)-1]))
	}

	return sb.String()
}

func writeNode(sb *strings.Builder, el *domain.Element) {
	opener, closer := "[", "]"
	switch {
	case el.IsTree():
		opener, closer = "((", "))"
	case el.Transition != nil:
		opener, closer = "[[", "]]"
	}
	label := el.Name
	if el.Controller != "" {
		label += " <br/> " + el.Controller
	}
	fmt.Fprintf(sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(el.Path()), opener, escape(label), closer)
}

func writeEdge(sb *strings.Builder, from, to *domain.Element) {
	arrow := "-->"
	if label := triggerLabel(to.Trigger); label != "" {
		arrow = fmt.Sprintf("-- \"%s\" -->", escape(label))
	}
	fmt.Fprintf(sb, "    %s %s %s\n", sanitizeMermaidID(from.Path()), arrow, sanitizeMermaidID(to.Path()))
}

func writeTransition(sb *strings.Builder, from *domain.Element, t *domain.Transition) {
	for ; t != nil; t = t.Next {
		target := resolve(from, t)
		if target == nil {
			// CALLER depends on the session; unknown targets are reported by Link.
			fmt.Fprintf(sb, "    %s -. \"%s\" .-> caller((\"caller\"))\n", sanitizeMermaidID(from.Path()), t.Kind)
			continue
		}
		fmt.Fprintf(sb, "    %s -. \"%s\" .-> %s\n", sanitizeMermaidID(from.Path()), t.Kind, sanitizeMermaidID(target.Path()))
	}
}

func resolve(from *domain.Element, t *domain.Transition) *domain.Element {
	switch t.Kind {
	case domain.TransitionJump:
		return from.Root().Child(t.Target)
	case domain.TransitionBack:
		for cur := from.Parent(); cur != nil && cur.Kind != domain.KindRoot; cur = cur.Parent() {
			if cur.Name == t.Target {
				return cur
			}
		}
	}
	return nil
}

func triggerLabel(t domain.Trigger) string {
	var parts []string
	parts = append(parts, t.Commands...)
	parts = append(parts, t.Keys...)
	for _, cb := range t.Callbacks {
		parts = append(parts, "cb:"+cb)
	}
	if t.Predicate != nil {
		if t.Predicate.Expr != "" {
			parts = append(parts, t.Predicate.Expr)
		} else {
			parts = append(parts, "when")
		}
	}
	return strings.Join(parts, " | ")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "__")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
