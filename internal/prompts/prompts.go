// Package prompts holds the system prompts and request parameters for the AI
// transforms. Each kind can be overridden by a Markdown file whose YAML
// frontmatter carries the request parameters and whose body is the system
// prompt.
package prompts

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/nota/internal/parser"
	"github.com/starford/nota/internal/storage"
)

// Kind names one AI transform.
type Kind string

const (
	Summarize Kind = "summarize"
	Enhance   Kind = "enhance"
)

// Kinds lists every transform kind.
var Kinds = []Kind{Summarize, Enhance}

// FileName returns the override file name for kind.
func FileName(kind Kind) string { return string(kind) + ".md" }

// Template configures one kind of completion request. An empty Model means
// the client's configured model; nil sampling parameters are left to the
// provider.
type Template struct {
	Model       string   `yaml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	TopP        *float64 `yaml:"top_p,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	System      string   `yaml:"-"`
}

// Validate checks the sampling parameters.
func (t *Template) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&t.TopP, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&t.MaxTokens, validation.Min(0)),
		validation.Field(&t.System, validation.Required),
	)
}

const summarizeSystem = `You are an AI assistant specialized in summarizing user notes. ` +
	`Given a block of text, produce a concise summary that captures the key points and main ideas. ` +
	`Keep the style neutral and clear.`

const enhanceSystem = `You are an AI writing assistant. Your job is to take a user's raw note and rewrite it so that:
1. Grammar, punctuation, and spelling are correct.
2. Sentences flow smoothly and read naturally.
3. The original tone and voice of the author are preserved.
4. Any user-provided instructions (tone, style, focus) are applied.
5. The length remains roughly the same; don't over-expand or cut significant detail.

Only output the rewritten note text. Do not prepend or append any commentary.`

// Default returns the built-in template for kind.
func Default(kind Kind) Template {
	switch kind {
	case Enhance:
		return Template{
			System:      enhanceSystem,
			Temperature: float(0.3),
			TopP:        float(1),
			MaxTokens:   512,
		}
	default:
		return Template{System: summarizeSystem}
	}
}

func float(v float64) *float64 { return &v }

// SummarizeMessage builds the user message for a summary request.
func SummarizeMessage(content string) string {
	return "Please summarize the following note:\n\n" + content
}

// EnhanceMessage builds the user message for a rewrite request. Blank
// instructions select the generic grammar-and-flow rewrite.
func EnhanceMessage(content, instructions string) string {
	if strings.TrimSpace(instructions) == "" {
		return "Enhance the following note, correcting grammar and improving flow while preserving voice:\n\n" + content
	}
	return "Enhance the following note applying these instructions: " + instructions +
		"\n\nOriginal Note:\n" + content
}

// Set is the live template table. It is safe for concurrent use.
type Set struct {
	src    storage.Provider
	logger *slog.Logger

	mu    sync.RWMutex
	items map[Kind]Template
	sums  map[Kind]string
}

// NewSet returns a template set backed by src. A nil src serves the built-in
// defaults only.
func NewSet(src storage.Provider, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Set{
		src:    src,
		logger: logger,
		items:  make(map[Kind]Template, len(Kinds)),
		sums:   make(map[Kind]string, len(Kinds)),
	}
	for _, k := range Kinds {
		s.items[k] = Default(k)
	}
	if src != nil {
		if _, err := s.Reload(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get returns the current template for kind.
func (s *Set) Get(kind Kind) Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.items[kind]; ok {
		return t
	}
	return Default(kind)
}

// Reload re-reads override files whose contents changed and returns the kinds
// that changed. A removed file restores the default. An invalid file keeps
// the previous template and is reported in the returned error.
func (s *Set) Reload() ([]Kind, error) {
	if s.src == nil {
		return nil, nil
	}
	files, err := s.src.List()
	if err != nil {
		return nil, fmt.Errorf("prompts: reload: %w", err)
	}
	byName := make(map[string]storage.File, len(files))
	for _, f := range files {
		byName[f.Name] = f
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		changed []Kind
		errs    []error
	)
	for _, kind := range Kinds {
		f, ok := byName[FileName(kind)]
		if !ok {
			if _, had := s.sums[kind]; had {
				delete(s.sums, kind)
				s.items[kind] = Default(kind)
				changed = append(changed, kind)
			}
			continue
		}
		if s.sums[kind] == f.Checksum {
			continue
		}
		data, err := s.src.Read(f.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		t, err := decode(kind, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("prompts: %s: %w", f.Name, err))
			continue
		}
		s.items[kind] = t
		s.sums[kind] = f.Checksum
		changed = append(changed, kind)
		s.logger.Debug("prompts: override loaded", slog.String("kind", string(kind)))
	}
	return changed, errors.Join(errs...)
}

func decode(kind Kind, data []byte) (Template, error) {
	t := Default(kind)
	body, err := parser.Decode(data, &t)
	if err != nil {
		return Template{}, err
	}
	if body = strings.TrimSpace(body); body != "" {
		t.System = body
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Render formats t as an override file.
func Render(t Template) ([]byte, error) {
	meta, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("prompts: render: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	if string(meta) != "{}\n" {
		b.Write(meta)
	}
	b.WriteString("---\n\n")
	b.WriteString(t.System)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

// WriteDefaults writes the built-in templates to dst and returns the names
// written. Existing files are kept unless overwrite is set.
func WriteDefaults(dst storage.Provider, overwrite bool) ([]string, error) {
	var written []string
	for _, kind := range Kinds {
		name := FileName(kind)
		if !overwrite {
			if _, err := dst.Read(name); err == nil {
				continue
			}
		}
		data, err := Render(Default(kind))
		if err != nil {
			return written, err
		}
		if err := dst.Write(name, data); err != nil {
			return written, fmt.Errorf("prompts: write %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}
