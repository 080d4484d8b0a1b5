package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// namer computes output paths for planned jobs under one of the four
// naming strategies.
type namer struct {
	config models.ExportConfig
	seq    int
}

func newNamer(config models.ExportConfig) *namer {
	return &namer{config: config}
}

// outputPath derives the output file path for one (file, diagram, format)
// combination. When overwrite is disabled and the target exists, a numeric
// suffix is appended.
func (n *namer) outputPath(file *models.SourceFile, diagramIdx int, diagram models.Diagram, format models.ExportFormat) string {
	base := strings.TrimSuffix(filepath.Base(file.Path), filepath.Ext(file.Path))

	var name string
	switch n.config.NamingStrategy {
	case models.NamingSequential:
		n.seq++
		name = fmt.Sprintf("diagram-%03d", n.seq)
	case models.NamingSourceLine:
		name = fmt.Sprintf("%s-line-%d", base, diagram.Line)
	case models.NamingTemplate:
		name = n.applyTemplate(base, diagramIdx, diagram)
	default: // descriptive
		kind := diagram.Type
		if kind == "" {
			kind = "diagram"
		}
		name = fmt.Sprintf("%s-%s-%d", base, kind, diagramIdx+1)
	}

	dir := n.config.OutputDirectory
	if n.config.OrganizeByFormat {
		dir = filepath.Join(dir, string(format))
	}

	path := filepath.Join(dir, name+"."+string(format))
	if !n.config.Overwrite {
		path = deconflict(path)
	}
	return path
}

// applyTemplate expands the custom name template. Supported placeholders:
// {file}, {type}, {index}, {line}.
func (n *namer) applyTemplate(base string, diagramIdx int, diagram models.Diagram) string {
	tpl := n.config.NameTemplate
	if tpl == "" {
		tpl = "{file}-{index}"
	}
	kind := diagram.Type
	if kind == "" {
		kind = "diagram"
	}
	r := strings.NewReplacer(
		"{file}", base,
		"{type}", kind,
		"{index}", fmt.Sprintf("%d", diagramIdx+1),
		"{line}", fmt.Sprintf("%d", diagram.Line),
	)
	return r.Replace(tpl)
}

// deconflict appends -2, -3, ... until the path no longer exists.
func deconflict(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
