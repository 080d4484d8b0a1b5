package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

func namerConfig(t *testing.T, strategy models.NamingStrategy) models.ExportConfig {
	t.Helper()
	return models.ExportConfig{
		OutputDirectory: t.TempDir(),
		Formats:         []models.ExportFormat{models.FormatSVG},
		NamingStrategy:  strategy,
		Overwrite:       true,
		MaxDepth:        1,
	}
}

func TestSequentialNaming(t *testing.T) {
	n := newNamer(namerConfig(t, models.NamingSequential))
	file := sourceFile("docs/a.md")
	d := diagram("flowchart", models.ComplexitySimple, 2)

	first := n.outputPath(file, 0, d, models.FormatSVG)
	second := n.outputPath(file, 1, d, models.FormatSVG)

	assert.Equal(t, "diagram-001.svg", filepath.Base(first))
	assert.Equal(t, "diagram-002.svg", filepath.Base(second))
}

func TestDescriptiveNaming(t *testing.T) {
	n := newNamer(namerConfig(t, models.NamingDescriptive))
	file := sourceFile("docs/report.md")

	path := n.outputPath(file, 0, diagram("sequenceDiagram", models.ComplexitySimple, 2), models.FormatPNG)
	assert.Equal(t, "report-sequenceDiagram-1.png", filepath.Base(path))

	// Unknown diagram types fall back to a generic label.
	path = n.outputPath(file, 1, diagram("", models.ComplexitySimple, 2), models.FormatPNG)
	assert.Equal(t, "report-diagram-2.png", filepath.Base(path))
}

func TestSourceLineNaming(t *testing.T) {
	n := newNamer(namerConfig(t, models.NamingSourceLine))
	file := sourceFile("docs/guide.md")
	d := diagram("flowchart", models.ComplexitySimple, 2)
	d.Line = 42

	path := n.outputPath(file, 0, d, models.FormatSVG)
	assert.Equal(t, "guide-line-42.svg", filepath.Base(path))
}

func TestTemplateNaming(t *testing.T) {
	config := namerConfig(t, models.NamingTemplate)
	config.NameTemplate = "{file}_{type}_{index}_L{line}"
	n := newNamer(config)

	file := sourceFile("docs/spec-notes.md")
	d := diagram("gantt", models.ComplexitySimple, 2)
	d.Line = 7

	path := n.outputPath(file, 2, d, models.FormatPDF)
	assert.Equal(t, "spec-notes_gantt_3_L7.pdf", filepath.Base(path))
}

func TestDeconflictWithoutOverwrite(t *testing.T) {
	config := namerConfig(t, models.NamingDescriptive)
	config.Overwrite = false
	n := newNamer(config)

	file := sourceFile("docs/a.md")
	d := diagram("flowchart", models.ComplexitySimple, 2)

	first := n.outputPath(file, 0, d, models.FormatSVG)
	require.NoError(t, os.WriteFile(first, []byte("x"), 0644))

	second := n.outputPath(file, 0, d, models.FormatSVG)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "a-flowchart-1-2.svg", filepath.Base(second))
}

func TestOrganizeByFormatSubdirectory(t *testing.T) {
	config := namerConfig(t, models.NamingDescriptive)
	config.OrganizeByFormat = true
	n := newNamer(config)

	path := n.outputPath(sourceFile("docs/a.md"), 0, diagram("flowchart", models.ComplexitySimple, 2), models.FormatPNG)
	assert.Equal(t, "png", filepath.Base(filepath.Dir(path)))
}
