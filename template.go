package chartsync

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"

	"github.com/yuin/goldmark"
)

// SourceKind discriminates the template source variants.
type SourceKind int

const (
	// SourceInline is markup text supplied directly.
	SourceInline SourceKind = iota

	// SourceURL is a reference resolved through the compiler's Loader.
	SourceURL

	// SourceMarkdown is markdown text converted to markup before parsing.
	SourceMarkdown
)

// Source identifies a template to compile: inline markup, a URL reference,
// or markdown text.
type Source struct {
	kind SourceKind
	text string
}

// InlineSource wraps inline markup text.
func InlineSource(markup string) Source {
	return Source{kind: SourceInline, text: markup}
}

// URLSource references a template resolved through a Loader. Resolution
// may block; the compiler caches the result by URL so repeated use of the
// same reference compiles once.
func URLSource(url string) Source {
	return Source{kind: SourceURL, text: url}
}

// MarkdownSource wraps markdown text. The markdown is rendered to markup
// with goldmark before template parsing, so template actions inside it
// still apply.
func MarkdownSource(md string) Source {
	return Source{kind: SourceMarkdown, text: md}
}

// Kind returns the source variant.
func (s Source) Kind() SourceKind { return s.kind }

// Ident returns a short identity for error reporting: the URL for URL
// sources, a fixed tag otherwise.
func (s Source) Ident() string {
	switch s.kind {
	case SourceURL:
		return s.text
	case SourceMarkdown:
		return "inline-markdown"
	default:
		return "inline"
	}
}

// CompiledTemplate is a reusable render function produced by the Compiler.
// It is pure with respect to global state: all per-invocation state flows
// through the data argument.
type CompiledTemplate struct {
	source string
	tmpl   *template.Template
}

// Source returns the identity of the source this template was compiled from.
func (t *CompiledTemplate) Source() string { return t.source }

// Render executes the template against data and returns the markup fragment.
// Failures surface as *TemplateError.
func (t *CompiledTemplate) Render(data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", &TemplateError{Source: t.source, Err: err}
	}
	return template.HTML(buf.String()), nil //nolint:gosec // fragment produced by html/template escaping
}

// Compiler compiles template sources into reusable render functions.
// URL sources resolve through the configured Loader and both the resolved
// text and the compiled template are cached by URL, so a templateUrl shared
// across many call sites compiles once.
type Compiler struct {
	loader Loader

	mu    sync.Mutex
	cache map[string]*CompiledTemplate
}

// NewCompiler creates a Compiler. The loader may be nil when only inline
// and markdown sources are used; compiling a URL source without a loader
// is a *TemplateError.
func NewCompiler(loader Loader) *Compiler {
	return &Compiler{
		loader: loader,
		cache:  make(map[string]*CompiledTemplate),
	}
}

// Compile turns a Source into a CompiledTemplate. URL resolution may block
// on the Loader; everything else completes synchronously. Compilation
// failures surface as *TemplateError carrying the source identity.
func (c *Compiler) Compile(ctx context.Context, src Source) (*CompiledTemplate, error) {
	switch src.kind {
	case SourceInline:
		return c.parse(src.Ident(), src.text)

	case SourceMarkdown:
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(src.text), &buf); err != nil {
			emitBackground(TemplateCompileFailed,
				KeySource.Field(src.Ident()),
				KeyError.Field(err.Error()),
			)
			return nil, &TemplateError{Source: src.Ident(), Err: err}
		}
		return c.parse(src.Ident(), buf.String())

	case SourceURL:
		return c.compileURL(ctx, src.text)

	default:
		return nil, &TemplateError{Source: src.Ident(), Err: fmt.Errorf("unknown source kind %d", src.kind)}
	}
}

// Cached returns the compiled template for a URL if resolution has already
// completed, without blocking.
func (c *Compiler) Cached(url string) (*CompiledTemplate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.cache[url]
	return t, ok
}

func (c *Compiler) compileURL(ctx context.Context, url string) (*CompiledTemplate, error) {
	c.mu.Lock()
	if t, ok := c.cache[url]; ok {
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	if c.loader == nil {
		err := &TemplateError{Source: url, Err: fmt.Errorf("no loader configured")}
		emitBackground(TemplateCompileFailed,
			KeySource.Field(url),
			KeyError.Field(err.Err.Error()),
		)
		return nil, err
	}

	text, err := c.loader.Resolve(ctx, url)
	if err != nil {
		emitBackground(TemplateCompileFailed,
			KeySource.Field(url),
			KeyError.Field(err.Error()),
		)
		return nil, &TemplateError{Source: url, Err: err}
	}

	t, perr := c.parse(url, text)
	if perr != nil {
		return nil, perr
	}

	c.mu.Lock()
	// A concurrent resolution may have won; keep the first entry so every
	// call site shares one compiled template per URL.
	if cached, ok := c.cache[url]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.cache[url] = t
	c.mu.Unlock()
	return t, nil
}

func (c *Compiler) parse(ident, text string) (*CompiledTemplate, error) {
	tmpl, err := template.New(ident).Parse(text)
	if err != nil {
		emitBackground(TemplateCompileFailed,
			KeySource.Field(ident),
			KeyError.Field(err.Error()),
		)
		return nil, &TemplateError{Source: ident, Err: err}
	}
	emitBackground(TemplateCompiled, KeySource.Field(ident))
	return &CompiledTemplate{source: ident, tmpl: tmpl}, nil
}
