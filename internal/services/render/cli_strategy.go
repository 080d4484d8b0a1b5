// -----------------------------------------------------------------------
// CLI Render Strategy - Shells out to the mermaid CLI (mmdc)
// -----------------------------------------------------------------------

package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/common"
	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// CLIStrategy renders diagrams through the mermaid CLI binary. It is the
// preferred backend when installed: the subprocess isolates rendering
// crashes and memory from this process.
type CLIStrategy struct {
	command string
	timeout time.Duration
	logger  arbor.ILogger
}

// Compile-time assertion
var _ interfaces.RenderStrategy = (*CLIStrategy)(nil)

// NewCLIStrategy creates a CLI strategy for the configured command.
func NewCLIStrategy(config *common.RenderConfig, logger arbor.ILogger) *CLIStrategy {
	command := config.CLICommand
	if command == "" {
		command = "mmdc"
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CLIStrategy{
		command: command,
		timeout: timeout,
		logger:  logger,
	}
}

// Name identifies this strategy. The batch engine prefers strategies whose
// name contains "CLI".
func (s *CLIStrategy) Name() string {
	return "CLI"
}

// IsAvailable reports whether the mermaid CLI binary is on PATH.
func (s *CLIStrategy) IsAvailable(ctx context.Context) bool {
	_, err := exec.LookPath(s.command)
	if err != nil {
		s.logger.Debug().
			Str("command", s.command).
			Msg("Mermaid CLI not found on PATH")
		return false
	}
	return true
}

// Export renders diagram source via the CLI through temporary files.
func (s *CLIStrategy) Export(ctx context.Context, content string, opts models.RenderOptions) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "mermaid-export-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inPath := filepath.Join(tmpDir, "diagram.mmd")
	if err := os.WriteFile(inPath, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write diagram source: %w", err)
	}

	ext := string(opts.Format)
	if opts.Format == models.FormatJPEG {
		ext = "jpg"
	}
	outPath := filepath.Join(tmpDir, "diagram."+ext)

	args := []string{"-i", inPath, "-o", outPath}
	if opts.Theme != "" {
		args = append(args, "-t", opts.Theme)
	}
	if opts.Background != "" {
		args = append(args, "-b", opts.Background)
	}
	if opts.Width > 0 {
		args = append(args, "-w", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		args = append(args, "-H", strconv.Itoa(opts.Height))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("mermaid CLI timeout after %s", s.timeout)
		}
		return nil, fmt.Errorf("mermaid CLI failed: %w: %s", err, firstLine(string(output)))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("mermaid CLI produced no output: %w", err)
	}

	s.logger.Debug().
		Str("format", string(opts.Format)).
		Int("bytes", len(data)).
		Msg("CLI render completed")

	return data, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
