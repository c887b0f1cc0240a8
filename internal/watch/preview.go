package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/cli/config"
	compilererrors "github.com/dphaener/ddmark/internal/compiler/errors"
	"github.com/dphaener/ddmark/pkg/diagram"
)

// Compiler converts documents; the rendered-diagram cache satisfies it
type Compiler interface {
	Compile(ctx context.Context, kind diagram.Kind, markdown string) (diagram.Source, bool, error)
}

// PreviewConfig configures a Previewer
type PreviewConfig struct {
	Watch config.WatchConfig
	// Kind is a kind name or "auto"
	Kind string
	// OutputDir, when set, also receives every rendered body as
	// <name>.<kind>.<ext>
	OutputDir string
	// OnRender observes every message after it was published
	OnRender func(*Message)
}

// Previewer re-renders Markdown files as they change and publishes the
// results on a Hub
type Previewer struct {
	compiler  Compiler
	hub       *Hub
	watcher   *FileWatcher
	kind      string
	outputDir string
	onRender  func(*Message)
	logger    *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewPreviewer creates a previewer. hub may be nil when only OutputDir or
// OnRender consume the results.
func NewPreviewer(cfg PreviewConfig, compiler Compiler, hub *Hub, logger *zap.Logger) (*Previewer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Previewer{
		compiler:  compiler,
		hub:       hub,
		kind:      cfg.Kind,
		outputDir: cfg.OutputDir,
		onRender:  cfg.OnRender,
		logger:    logger,
		ctx:       context.Background(),
	}

	watcher, err := NewFileWatcher(cfg.Watch, p.handleChanges, logger)
	if err != nil {
		return nil, err
	}
	p.watcher = watcher
	return p, nil
}

// Start renders every covered file once and then watches for changes.
// Renders triggered by changes use ctx.
func (p *Previewer) Start(ctx context.Context) error {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()

	if err := p.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	files, err := p.watcher.Scan()
	if err != nil {
		return err
	}
	p.logger.Info("preview watching", zap.Int("files", len(files)))
	p.RenderFiles(ctx, files)
	return nil
}

// Stop stops watching
func (p *Previewer) Stop() error {
	return p.watcher.Stop()
}

func (p *Previewer) handleChanges(files []string) {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	p.RenderFiles(ctx, files)
}

// RenderFiles renders and publishes each file in order
func (p *Previewer) RenderFiles(ctx context.Context, files []string) []*Message {
	messages := make([]*Message, 0, len(files))
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		messages = append(messages, p.Render(ctx, file))
	}
	return messages
}

// Render converts one file and publishes the result
func (p *Previewer) Render(ctx context.Context, file string) *Message {
	start := time.Now()
	message := p.render(ctx, file)
	message.Timestamp = time.Now().Unix()

	if message.Type == MessageError {
		p.logger.Warn("preview render failed", zap.String("file", file), zap.String("error", message.Error.Message))
	} else {
		p.logger.Debug("preview rendered",
			zap.String("file", file),
			zap.String("kind", string(message.Kind)),
			zap.Duration("elapsed", time.Since(start)))
	}

	if p.hub != nil {
		p.hub.Publish(message)
	}
	if p.onRender != nil {
		p.onRender(message)
	}
	return message
}

func (p *Previewer) render(ctx context.Context, file string) *Message {
	data, err := os.ReadFile(file)
	if err != nil {
		return errorMessage(file, err)
	}
	markdown := string(data)

	kind, err := diagram.ResolveKind(p.kind, markdown)
	if err != nil {
		return errorMessage(file, err)
	}
	src, _, err := p.compiler.Compile(ctx, kind, markdown)
	if err != nil {
		return errorMessage(file, err)
	}

	if p.outputDir != "" && !src.Empty() {
		if err := p.write(file, src); err != nil {
			return errorMessage(file, err)
		}
	}

	return &Message{
		Type:     MessageDiagram,
		File:     file,
		Kind:     src.Kind,
		Language: src.Language,
		Origin:   src.Origin,
		Body:     src.Body,
	}
}

func (p *Previewer) write(file string, src diagram.Source) error {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	out := filepath.Join(p.outputDir, src.FileName(stem))
	if err := os.WriteFile(out, []byte(src.Body+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return nil
}

func errorMessage(file string, err error) *Message {
	info := &ErrorInfo{Message: err.Error()}
	if ce, ok := compilererrors.As(err); ok {
		info.Message = ce.Message
		info.Code = string(ce.Code)
		info.Suggestion = ce.Suggestion
	}
	return &Message{Type: MessageError, File: file, Error: info}
}
