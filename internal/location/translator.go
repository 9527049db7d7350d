package location

import (
	"fmt"
	"os"
	"sync"

	gosourcemap "github.com/go-sourcemap/sourcemap"
	"go.uber.org/zap"
)

// SourceResolver returns the actor for an original source url. It may return
// nil, in which case the translator uses a SourceRef carrying only the url.
type SourceResolver func(url string) SourceActor

// Translator maps generated positions to original ones through the source
// maps registered for each generated url. It is safe for concurrent use.
type Translator struct {
	mu        sync.RWMutex
	consumers map[string]*gosourcemap.Consumer
	resolve   SourceResolver
	logger    *zap.Logger
}

// NewTranslator creates an empty translator
func NewTranslator(resolve SourceResolver, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{
		consumers: make(map[string]*gosourcemap.Consumer),
		resolve:   resolve,
		logger:    logger,
	}
}

// Register parses a source map for generatedURL, replacing any previous one
func (t *Translator) Register(generatedURL string, sourceMap []byte) error {
	consumer, err := gosourcemap.Parse(generatedURL, sourceMap)
	if err != nil {
		return fmt.Errorf("failed to parse source map for %s: %w", generatedURL, err)
	}

	t.mu.Lock()
	t.consumers[generatedURL] = consumer
	t.mu.Unlock()
	return nil
}

// RegisterFile reads a source map from disk and registers it for generatedURL
func (t *Translator) RegisterFile(generatedURL, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read source map %s: %w", path, err)
	}
	return t.Register(generatedURL, data)
}

// Has reports whether a source map is registered for generatedURL
func (t *Translator) Has(generatedURL string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.consumers[generatedURL]
	return ok
}

func (t *Translator) consumer(generatedURL string) *gosourcemap.Consumer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.consumers[generatedURL]
}

func (t *Translator) source(url string) SourceActor {
	if t.resolve != nil {
		if s := t.resolve(url); s != nil {
			return s
		}
	}
	return SourceRef{Href: url}
}

// Original maps g to its original location. It reports false when no map is
// registered for g's url, g has no column, or the map has no segment for it.
func (t *Translator) Original(g GeneratedLocation) (OriginalLocation, bool) {
	column, ok := g.GeneratedColumn()
	if !ok {
		return OriginalLocation{}, false
	}
	return t.original(g.GeneratedURL(), g.GeneratedLine(), column)
}

func (t *Translator) original(generatedURL string, line, column int) (OriginalLocation, bool) {
	consumer := t.consumer(generatedURL)
	if consumer == nil {
		return OriginalLocation{}, false
	}

	file, name, origLine, origColumn, ok := consumer.Source(line, column)
	if !ok || file == "" || origLine <= 0 {
		return OriginalLocation{}, false
	}

	o := NewOriginal(t.source(file), origLine).WithColumn(origColumn)
	if name != "" {
		o = o.WithName(name)
	}
	return o, true
}

// MapFrames maps each positioned frame whose file has a registered source map
func (t *Translator) MapFrames(frames []StackFrame) []MappedFrame {
	mapped := make([]MappedFrame, len(frames))
	for i, frame := range frames {
		mapped[i] = MappedFrame{StackFrame: frame}
		if !frame.HasPosition() {
			continue
		}
		// stack columns are 1-based, source map columns 0-based
		o, ok := t.original(frame.FileName, frame.Line, frame.Column-1)
		if !ok {
			if t.Has(frame.FileName) {
				t.logger.Warn("failed to map stack frame",
					zap.String("file", frame.FileName),
					zap.Int("line", frame.Line),
					zap.Int("column", frame.Column))
			}
			continue
		}
		mapped[i].Original = &o
	}
	return mapped
}

// MapStack rewrites a stack trace so that every frame with a registered
// source map points at its original position.
func (t *Translator) MapStack(stack string) string {
	return FormatStack(t.MapFrames(ParseStack(stack)))
}
