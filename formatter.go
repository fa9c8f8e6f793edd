package chartsync

import (
	"context"
	"fmt"
	"html/template"
	"sync"
	"sync/atomic"
)

// CallbackArgs carries the chart-callback-specific variables handed to a
// formatter: the point and series being rendered, the raw value for axis
// labels, and whatever the chart passes as the formatted value.
type CallbackArgs struct {
	Point     *Point
	Series    *Series
	Value     any
	AxisValue any
}

// FormatterFunc matches the chart library's formatter contract: invoked
// synchronously during the chart's own rendering pass, it must return its
// markup fragment immediately. The chart discards anything not returned
// within the call.
type FormatterFunc func(args CallbackArgs) template.HTML

// TemplateRef references a template to use as a formatter: inline markup
// or a URL resolved through the compiler's Loader. Exactly one must be set.
type TemplateRef struct {
	Template    string
	TemplateURL string
}

// Formatter is the tagged variant a formatter-capable chart option
// resolves to at setup: either a plain function or a template descriptor.
type Formatter struct {
	fn  FormatterFunc
	ref *TemplateRef
}

// FuncFormatter wraps a plain formatter function.
func FuncFormatter(fn FormatterFunc) Formatter {
	return Formatter{fn: fn}
}

// TemplateFormatter wraps a template descriptor.
func TemplateFormatter(ref TemplateRef) Formatter {
	return Formatter{ref: &ref}
}

// IsZero reports whether no formatter was configured.
func (f Formatter) IsZero() bool {
	return f.fn == nil && f.ref == nil
}

// FieldOptions is the recognized shape of a formatter-capable chart option
// field. The rest of the owning configuration object passes through
// opaquely; only these keys are consumed.
type FieldOptions struct {
	// UseHTML must be true for template formatters: the chart only honors
	// markup fragments when raw-markup rendering is enabled on the option.
	UseHTML bool

	// Formatter is the function-or-template variant to bind.
	Formatter Formatter
}

// Instance is one compiled template bound to one formatter call site. It
// owns an isolated child scope and may be re-rendered many times with
// different callback data without recompilation. Its lifetime is the
// lifetime of the chart element hosting it: the owning Handle disposes it
// at teardown, and a dangling instance is a leak.
type Instance struct {
	scope    *Scope
	tmpl     *CompiledTemplate
	disposed atomic.Bool
}

// Dispose detaches the instance's scope. Idempotent.
func (i *Instance) Dispose() {
	if i.disposed.CompareAndSwap(false, true) {
		i.scope.Dispose()
		emitBackground(InstanceDisposed, KeySource.Field(i.tmpl.Source()))
	}
}

// render stages the callback variables on the isolated scope, flushes it
// synchronously, and executes the template. Errors and panics are
// contained here: the chart library's call stack must never see them.
func (i *Instance) render(args CallbackArgs, metrics MetricsProvider) (out template.HTML) {
	if i.disposed.Load() {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			emitBackground(RenderFailed,
				KeySource.Field(i.tmpl.Source()),
				KeyError.Field(fmt.Sprint(r)),
			)
			if metrics != nil {
				metrics.OnRenderFailure(i.tmpl.Source())
			}
			out = ""
		}
	}()

	i.scope.Set("Point", args.Point)
	i.scope.Set("Series", args.Series)
	i.scope.Set("Value", args.Value)
	i.scope.Set("AxisValue", args.AxisValue)
	i.scope.Flush()

	fragment, err := i.tmpl.Render(i.scope.Snapshot())
	if err != nil {
		emitBackground(RenderFailed,
			KeySource.Field(i.tmpl.Source()),
			KeyError.Field(err.Error()),
		)
		if metrics != nil {
			metrics.OnRenderFailure(i.tmpl.Source())
		}
		return ""
	}
	return fragment
}

// Bridge turns formatter descriptors into callbacks matching the chart
// library's formatter contract. Instances created by the bridge register
// with the owning Handle so teardown can dispose them.
type Bridge struct {
	compiler *Compiler
	handle   *Handle
	metrics  MetricsProvider
}

// NewBridge creates a Bridge for one chart handle.
func NewBridge(compiler *Compiler, handle *Handle) *Bridge {
	return &Bridge{compiler: compiler, handle: handle}
}

// Metrics sets a metrics provider for render failure accounting.
func (b *Bridge) Metrics(provider MetricsProvider) *Bridge {
	b.metrics = provider
	return b
}

// binding is the per-call-site state behind a bound template formatter.
type binding struct {
	mu        sync.Mutex
	inst      *Instance
	failed    bool
	resolving bool
}

// Bind resolves a formatter-capable option field into a uniform
// FormatterFunc.
//
// Plain functions pass through untouched. Template descriptors are
// validated eagerly: binding fails with a *ConfigurationError when
// raw-markup rendering is not enabled or the descriptor is malformed, so
// misconfiguration surfaces before the chart is shown, not at first
// render.
//
// Compilation itself is deferred to the first invocation. Inline sources
// compile within that call; URL sources whose resolution has not finished
// yet yield the empty fragment while resolution proceeds in the
// background. A compilation that completes after the handle was destroyed
// is discarded.
func (b *Bridge) Bind(opts FieldOptions, parent *Scope) (FormatterFunc, error) {
	f := opts.Formatter
	if f.IsZero() {
		return nil, &ConfigurationError{Field: "formatter", Reason: "no function or template configured"}
	}
	if f.fn != nil {
		return f.fn, nil
	}

	ref := *f.ref
	if (ref.Template == "") == (ref.TemplateURL == "") {
		return nil, &ConfigurationError{
			Field:  "formatter",
			Reason: "exactly one of template and templateUrl must be set",
		}
	}
	if !opts.UseHTML {
		return nil, &ConfigurationError{
			Field:  "formatter",
			Reason: "template formatters require raw-markup rendering (useHTML) on the owning option",
		}
	}
	if parent == nil {
		parent = NewScope()
	}

	bind := &binding{}
	return func(args CallbackArgs) template.HTML {
		if b.handle.Destroyed() {
			return ""
		}

		bind.mu.Lock()
		inst := bind.inst
		if inst == nil && !bind.failed {
			inst = b.materialize(bind, ref, parent)
		}
		bind.mu.Unlock()

		if inst == nil {
			return ""
		}
		return inst.render(args, b.metrics)
	}, nil
}

// materialize compiles the call site's template and creates its instance.
// Called with bind.mu held. Returns nil when no instance is available yet:
// compilation failed, or URL resolution is still in flight.
func (b *Bridge) materialize(bind *binding, ref TemplateRef, parent *Scope) *Instance {
	if ref.Template != "" {
		tmpl, err := b.compiler.Compile(context.Background(), InlineSource(ref.Template))
		if err != nil {
			bind.failed = true
			return nil
		}
		bind.inst = b.newInstance(tmpl, parent)
		return bind.inst
	}

	// URL source: serve from the compiler cache when resolution already
	// completed, otherwise resolve in the background and degrade to the
	// empty fragment for now.
	if tmpl, ok := b.compiler.Cached(ref.TemplateURL); ok {
		bind.inst = b.newInstance(tmpl, parent)
		return bind.inst
	}

	if bind.resolving {
		return nil
	}
	bind.resolving = true

	go func() {
		tmpl, err := b.compiler.Compile(context.Background(), URLSource(ref.TemplateURL))

		bind.mu.Lock()
		defer bind.mu.Unlock()
		bind.resolving = false
		if err != nil {
			bind.failed = true
			return
		}
		if b.handle.Destroyed() {
			// Teardown happened mid-flight; the result is discarded.
			return
		}
		bind.inst = b.newInstance(tmpl, parent)
	}()

	return nil
}

func (b *Bridge) newInstance(tmpl *CompiledTemplate, parent *Scope) *Instance {
	inst := &Instance{scope: parent.Child(), tmpl: tmpl}
	b.handle.register(inst)
	return inst
}
