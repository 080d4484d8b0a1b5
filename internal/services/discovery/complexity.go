package discovery

import (
	"strings"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// diagramTypeKeywords are the mermaid diagram type declarations recognized
// on the first meaningful line of a diagram.
var diagramTypeKeywords = []string{
	"flowchart",
	"graph",
	"sequenceDiagram",
	"classDiagram",
	"stateDiagram-v2",
	"stateDiagram",
	"erDiagram",
	"journey",
	"gantt",
	"pie",
	"quadrantChart",
	"requirementDiagram",
	"gitGraph",
	"mindmap",
	"timeline",
	"sankey",
	"xychart-beta",
	"block-beta",
}

// edgeTokens approximate edge count for complexity scoring.
var edgeTokens = []string{
	"-->", "---", "-.->", "==>", "->>", "-->>", "->", "--",
}

// detectType returns the diagram type keyword, or "" when unrecognized.
func detectType(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		for _, kw := range diagramTypeKeywords {
			if strings.HasPrefix(line, kw) {
				return kw
			}
		}
		return ""
	}
	return ""
}

// scoreComplexity estimates rendering cost as non-empty lines plus edges.
func scoreComplexity(content string) int {
	score := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		score++
		score += countEdges(line)
	}
	return score
}

// countEdges counts edge tokens on a line. Longer tokens are matched first
// so "-->" doesn't also count as "--".
func countEdges(line string) int {
	count := 0
	for _, tok := range edgeTokens {
		n := strings.Count(line, tok)
		if n > 0 {
			count += n
			line = strings.ReplaceAll(line, tok, "")
		}
	}
	return count
}

// categorize buckets a complexity score.
func categorize(score int) models.ComplexityCategory {
	switch {
	case score <= 5:
		return models.ComplexitySimple
	case score <= 15:
		return models.ComplexityModerate
	case score <= 30:
		return models.ComplexityComplex
	default:
		return models.ComplexityVeryComplex
	}
}
