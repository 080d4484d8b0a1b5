package models

// ComplexityCategory buckets a diagram by expected rendering cost.
type ComplexityCategory string

const (
	ComplexitySimple      ComplexityCategory = "simple"
	ComplexityModerate    ComplexityCategory = "moderate"
	ComplexityComplex     ComplexityCategory = "complex"
	ComplexityVeryComplex ComplexityCategory = "very-complex"
)

// Diagram is one mermaid diagram extracted from a source file.
// The discovery stage computes complexity once at extraction time;
// downstream consumers treat the record as immutable.
type Diagram struct {
	// Content is the raw mermaid source text (without the fence markers).
	Content string `json:"content"`
	// Type is the mermaid diagram type keyword (flowchart, sequenceDiagram, ...).
	// Empty when the first line is not a recognized keyword.
	Type string `json:"type"`
	// Line is the 1-based line number of the opening fence in the source file.
	// Zero for .mmd files, which hold a single diagram.
	Line int `json:"line"`
	// ComplexityScore is a node/edge count heuristic.
	ComplexityScore int `json:"complexity_score"`
	// ComplexityCategory is the bucketed form of ComplexityScore.
	ComplexityCategory ComplexityCategory `json:"complexity_category"`
}

// SourceFile is a discovered file carrying its extracted diagrams.
type SourceFile struct {
	Path     string    `json:"path"`
	Diagrams []Diagram `json:"diagrams"`
	// Options holds per-file export overrides parsed from YAML frontmatter.
	// Nil when the file carries no frontmatter.
	Options *FileExportOptions `json:"options,omitempty"`
}

// FileExportOptions are per-file overrides declared in markdown frontmatter
// under the "mermaid-export" key.
type FileExportOptions struct {
	Theme      string   `yaml:"theme" json:"theme,omitempty"`
	Background string   `yaml:"background" json:"background,omitempty"`
	Formats    []string `yaml:"formats" json:"formats,omitempty"`
	Skip       bool     `yaml:"skip" json:"skip,omitempty"`
}
