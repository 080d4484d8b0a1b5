package discovery

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

var frontmatterDelim = []byte("---\n")

// frontmatterDoc is the subset of markdown frontmatter this tool reads.
type frontmatterDoc struct {
	MermaidExport *models.FileExportOptions `yaml:"mermaid-export"`
}

// parseFrontmatter extracts the "mermaid-export" frontmatter block from
// markdown content. Returns nil options and the original content when no
// frontmatter is present or it fails to parse; frontmatter problems should
// never block discovery.
func parseFrontmatter(content []byte) (*models.FileExportOptions, []byte) {
	if !bytes.HasPrefix(content, frontmatterDelim) {
		return nil, content
	}

	end := bytes.Index(content[len(frontmatterDelim):], []byte("\n---"))
	if end == -1 {
		return nil, content
	}

	raw := content[len(frontmatterDelim) : len(frontmatterDelim)+end]
	rest := content[len(frontmatterDelim)+end+len("\n---"):]
	if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		rest = nil
	}

	var doc frontmatterDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, content
	}

	return doc.MermaidExport, rest
}
