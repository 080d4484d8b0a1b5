// -----------------------------------------------------------------------
// Diagram Discovery - Finds mermaid diagrams in markdown and .mmd trees
// -----------------------------------------------------------------------

package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".hg":          true,
	".svn":         true,
}

// markdownExtensions are the file extensions parsed as markdown.
var markdownExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
}

// Service implements interfaces.DiscoveryService
type Service struct {
	md     goldmark.Markdown
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.DiscoveryService = (*Service)(nil)

// NewService creates a new discovery service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		md:     goldmark.New(),
		logger: logger,
	}
}

// DiscoverFiles walks the tree under opts.Root up to opts.MaxDepth and
// returns every file carrying at least one mermaid diagram, sorted by path.
func (s *Service) DiscoverFiles(ctx context.Context, opts interfaces.DiscoveryOptions) ([]*models.SourceFile, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("discovery root is required")
	}
	if opts.MaxDepth < 1 {
		return nil, fmt.Errorf("max depth must be at least 1, got %d", opts.MaxDepth)
	}

	root := filepath.Clean(opts.Root)
	var files []*models.SourceFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			// MaxDepth 1 means files directly under root.
			if rel != "." && strings.Count(rel, string(filepath.Separator))+1 >= opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		for _, glob := range opts.ExcludeGlobs {
			if matched, _ := filepath.Match(glob, rel); matched {
				return nil
			}
		}

		ext := strings.ToLower(filepath.Ext(path))
		isMarkdown := markdownExtensions[ext]
		isMMD := opts.IncludeMMD && ext == ".mmd"
		if !isMarkdown && !isMMD {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			s.logger.Warn().Err(readErr).Str("path", path).Msg("Skipping unreadable file")
			return nil
		}

		file, exErr := s.ExtractDiagrams(path, content)
		if exErr != nil {
			s.logger.Warn().Err(exErr).Str("path", path).Msg("Skipping unparseable file")
			return nil
		}
		if file != nil && len(file.Diagrams) > 0 {
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery walk failed: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	s.logger.Info().
		Str("root", root).
		Int("files", len(files)).
		Msg("Diagram discovery completed")

	return files, nil
}

// ExtractDiagrams parses one file's content. Markdown files yield one
// diagram per fenced mermaid block; .mmd files yield a single diagram.
// Files whose frontmatter sets skip=true return no diagrams.
func (s *Service) ExtractDiagrams(path string, content []byte) (*models.SourceFile, error) {
	file := &models.SourceFile{Path: path}

	if strings.ToLower(filepath.Ext(path)) == ".mmd" {
		src := strings.TrimSpace(string(content))
		if src == "" {
			return file, nil
		}
		file.Diagrams = []models.Diagram{newDiagram(src, 0)}
		return file, nil
	}

	opts, body := parseFrontmatter(content)
	file.Options = opts
	if opts != nil && opts.Skip {
		return file, nil
	}

	// Line offset lost when frontmatter is stripped; keep the original
	// source so reported line numbers match the file on disk.
	offset := len(content) - len(body)

	doc := s.md.Parser().Parse(text.NewReader(body))

	var walkErr error
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if lang := string(fenced.Language(body)); !strings.EqualFold(lang, "mermaid") {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(body))
		}
		src := strings.TrimRight(buf.String(), "\n")
		if src == "" {
			return ast.WalkContinue, nil
		}

		line := 0
		if lines.Len() > 0 {
			// Opening fence sits one line above the first content line.
			contentLine := bytes.Count(content[:offset+lines.At(0).Start], []byte("\n")) + 1
			line = contentLine - 1
		}

		file.Diagrams = append(file.Diagrams, newDiagram(src, line))
		return ast.WalkSkipChildren, nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return file, nil
}

func newDiagram(content string, line int) models.Diagram {
	score := scoreComplexity(content)
	return models.Diagram{
		Content:            content,
		Type:               detectType(content),
		Line:               line,
		ComplexityScore:    score,
		ComplexityCategory: categorize(score),
	}
}
