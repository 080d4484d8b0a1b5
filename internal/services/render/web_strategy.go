// -----------------------------------------------------------------------
// Web Render Strategy - In-process rendering via headless Chrome
// -----------------------------------------------------------------------

package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/common"
	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// mermaidCDN is used when no local mermaid.js bundle is configured.
const mermaidCDN = "https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"

// WebStrategy renders diagrams inside a headless Chrome instance driven by
// chromedp. The browser context is created lazily on first use and reused
// across jobs; Shutdown releases it.
type WebStrategy struct {
	config common.RenderConfig
	logger arbor.ILogger

	mu              sync.Mutex
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	mermaidJS       string
	initialized     bool
	initFailed      bool
}

// Compile-time assertion
var _ interfaces.RenderStrategy = (*WebStrategy)(nil)

// NewWebStrategy creates a web render strategy.
func NewWebStrategy(config *common.RenderConfig, logger arbor.ILogger) *WebStrategy {
	return &WebStrategy{
		config: *config,
		logger: logger,
	}
}

// Name identifies this strategy.
func (s *WebStrategy) Name() string {
	return "Web"
}

// IsAvailable reports whether a browser instance can be started.
func (s *WebStrategy) IsAvailable(ctx context.Context) bool {
	if err := s.ensureBrowser(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Headless browser unavailable")
		return false
	}
	return true
}

// ensureBrowser starts the shared browser context on first call.
func (s *WebStrategy) ensureBrowser(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	if s.initFailed {
		return fmt.Errorf("browser startup previously failed")
	}

	if s.config.MermaidJSPath != "" {
		data, err := os.ReadFile(s.config.MermaidJSPath)
		if err != nil {
			s.initFailed = true
			return fmt.Errorf("failed to read mermaid.js bundle: %w", err)
		}
		s.mermaidJS = string(data)
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
		chromedp.Flag("disable-gpu", s.config.DisableGPU),
		chromedp.Flag("no-sandbox", s.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup test with timeout so a missing Chrome fails fast.
	testTimeout := s.config.RequestTimeout
	if testTimeout <= 0 {
		testTimeout = 30 * time.Second
	}
	testCtx, testCancel := context.WithTimeout(browserCtx, testTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		s.initFailed = true
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.allocatorCancel = allocatorCancel
	s.initialized = true

	s.logger.Info().
		Bool("headless", s.config.Headless).
		Msg("Headless browser started for web rendering")

	return nil
}

// Export renders diagram source and returns bytes for the requested format.
// SVG comes straight from mermaid's renderer; raster formats are captured
// as screenshots; PDF is printed from the rendered page, falling back to a
// raster wrap when printing is unavailable.
func (s *WebStrategy) Export(ctx context.Context, content string, opts models.RenderOptions) ([]byte, error) {
	if err := s.ensureBrowser(ctx); err != nil {
		return nil, err
	}

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// A tab per job keeps page state from leaking between renders.
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()
	runCtx, runCancel := context.WithTimeout(tabCtx, timeout)
	defer runCancel()

	svg, err := s.renderSVG(runCtx, content, opts)
	if err != nil {
		return nil, err
	}

	switch opts.Format {
	case models.FormatSVG:
		return []byte(svg), nil
	case models.FormatPNG, models.FormatJPG, models.FormatJPEG, models.FormatWebP:
		return s.capture(runCtx, opts)
	case models.FormatPDF:
		return s.printPDF(runCtx, opts)
	default:
		return nil, fmt.Errorf("unsupported format: %s", opts.Format)
	}
}

// renderSVG loads mermaid.js into a blank page and renders the diagram
// into the document body.
func (s *WebStrategy) renderSVG(ctx context.Context, content string, opts models.RenderOptions) (string, error) {
	theme := opts.Theme
	if theme == "" {
		theme = "default"
	}
	background := opts.Background
	if background == "" {
		background = "transparent"
	}

	quoted, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to encode diagram source: %w", err)
	}

	tasks := chromedp.Tasks{chromedp.Navigate("about:blank")}

	if s.mermaidJS != "" {
		tasks = append(tasks, chromedp.Evaluate(s.mermaidJS, nil))
	} else {
		loadScript := fmt.Sprintf(`new Promise((resolve, reject) => {
			const el = document.createElement('script');
			el.src = %q;
			el.onload = resolve;
			el.onerror = () => reject(new Error('failed to load mermaid.js'));
			document.head.appendChild(el);
		})`, mermaidCDN)
		tasks = append(tasks, chromedp.Evaluate(loadScript, nil, awaitPromise))
	}

	if s.config.JavaScriptWaitTime > 0 {
		tasks = append(tasks, chromedp.Sleep(s.config.JavaScriptWaitTime))
	}

	renderScript := fmt.Sprintf(`(async () => {
		mermaid.initialize({ startOnLoad: false, theme: %q });
		const { svg } = await mermaid.render('export-diagram', %s);
		document.body.innerHTML = svg;
		document.body.style.margin = '0';
		document.body.style.background = %q;
		return svg;
	})()`, theme, string(quoted), background)

	var svg string
	tasks = append(tasks, chromedp.Evaluate(renderScript, &svg, awaitPromise))

	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("mermaid render failed: %w", err)
	}
	if svg == "" {
		return "", fmt.Errorf("mermaid render produced empty output")
	}
	return svg, nil
}

// capture screenshots the rendered diagram in the requested raster format.
func (s *WebStrategy) capture(ctx context.Context, opts models.RenderOptions) ([]byte, error) {
	format := page.CaptureScreenshotFormatPng
	switch opts.Format {
	case models.FormatJPG, models.FormatJPEG:
		format = page.CaptureScreenshotFormatJpeg
	case models.FormatWebP:
		format = page.CaptureScreenshotFormatWebp
	}

	var buf []byte
	err := chromedp.Run(ctx, chromedp.Tasks{
		s.applyViewport(opts),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(format).
				WithCaptureBeyondViewport(true).
				Do(ctx)
			return err
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// printPDF prints the rendered page to PDF, wrapping a PNG screenshot with
// fpdf when Chrome's print pipeline is unavailable.
func (s *WebStrategy) printPDF(ctx context.Context, opts models.RenderOptions) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(ctx, chromedp.Tasks{
		s.applyViewport(opts),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				Do(ctx)
			return err
		}),
	})
	if err == nil {
		return buf, nil
	}

	s.logger.Warn().Err(err).Msg("PrintToPDF failed, wrapping raster capture instead")

	pngOpts := opts
	pngOpts.Format = models.FormatPNG
	png, capErr := s.capture(ctx, pngOpts)
	if capErr != nil {
		return nil, fmt.Errorf("pdf fallback capture failed: %w", capErr)
	}
	return WrapPNGInPDF(png)
}

// applyViewport overrides device metrics when fixed dimensions are requested.
func (s *WebStrategy) applyViewport(opts models.RenderOptions) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if opts.Width <= 0 && opts.Height <= 0 {
			return nil
		}
		width := int64(opts.Width)
		if width <= 0 {
			width = 800
		}
		height := int64(opts.Height)
		if height <= 0 {
			height = 600
		}
		return emulation.SetDeviceMetricsOverride(width, height, 1, false).Do(ctx)
	})
}

// awaitPromise makes Evaluate resolve promises before returning.
func awaitPromise(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// Shutdown releases the browser instance.
func (s *WebStrategy) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return
	}
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
	}
	s.initialized = false
	s.logger.Info().Msg("Headless browser shut down")
}
