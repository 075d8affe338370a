package pipeline

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TerminalStage is the stage name reported for errors raised by the handler.
const TerminalStage = "terminal"

// ErrNoTerminal is returned by New when the handler is nil.
var ErrNoTerminal = errors.New("pipeline: terminal handler is required")

// Outcome is the result of a dispatch. Halt is set when an interceptor
// short-circuited; otherwise Response holds what the handler produced.
type Outcome struct {
	Response *Response
	Halt     *Halted
}

// Stopped reports whether an interceptor short-circuited the request.
func (o Outcome) Stopped() bool { return o.Halt != nil }

// Chain executes interceptors around a terminal handler.
// It is immutable after New and safe for concurrent use.
type Chain struct {
	labels       []string
	entry        stage
	tracer       trace.Tracer
	unwindOnStop bool
}

type stage func(req *Request) (Outcome, error)

// Option configures a Chain.
type Option func(*Chain)

// WithTracer opens one span per interceptor stage.
func WithTracer(t trace.Tracer) Option {
	return func(c *Chain) { c.tracer = t }
}

// WithUnwindOnStop runs the post-hooks of interceptors that already forwarded
// when an inner interceptor halts. The halting interceptor's own post-hook
// never runs.
func WithUnwindOnStop() Option {
	return func(c *Chain) { c.unwindOnStop = true }
}

// New composes the interceptors around terminal in declared order: the first
// interceptor is the outermost. An empty list is valid.
func New(terminal Handler, interceptors []Interceptor, opts ...Option) (*Chain, error) {
	if terminal == nil {
		return nil, ErrNoTerminal
	}
	if err := Validate(interceptors); err != nil {
		return nil, err
	}

	c := &Chain{labels: make([]string, len(interceptors))}
	for _, opt := range opts {
		opt(c)
	}

	next := func(req *Request) (Outcome, error) {
		resp, err := terminal(req)
		if err != nil {
			return Outcome{}, &StageError{Stage: TerminalStage, Err: err}
		}
		if resp == nil {
			resp = NewResponse(0, nil, nil)
		}
		return Outcome{Response: resp}, nil
	}
	for i := len(interceptors) - 1; i >= 0; i-- {
		c.labels[i] = interceptors[i].Label
		next = c.wrap(interceptors[i], next)
	}
	c.entry = next

	return c, nil
}

// Validate checks that every interceptor has a unique, non-empty label.
func Validate(interceptors []Interceptor) error {
	seen := make(map[string]bool, len(interceptors))
	for i, ic := range interceptors {
		if ic.Label == "" {
			return fmt.Errorf("pipeline: interceptor %d has no label", i)
		}
		if seen[ic.Label] {
			return fmt.Errorf("pipeline: duplicate interceptor label %q", ic.Label)
		}
		seen[ic.Label] = true
	}
	return nil
}

// Dispatch runs the request through the chain.
// A short-circuit is reported in the Outcome with a nil error.
func (c *Chain) Dispatch(req *Request) (Outcome, error) {
	return c.entry(req)
}

// Labels returns the interceptor labels in declared order.
func (c *Chain) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Len returns the number of interceptors in the chain.
func (c *Chain) Len() int {
	return len(c.labels)
}

func (c *Chain) wrap(ic Interceptor, next stage) stage {
	return func(req *Request) (out Outcome, err error) {
		if err := req.Context().Err(); err != nil {
			return Outcome{}, &StageError{Stage: ic.Label, Err: err}
		}

		if c.tracer != nil {
			ctx, span := c.tracer.Start(req.Context(), "interceptor "+ic.Label,
				trace.WithAttributes(attribute.String("interceptor.label", ic.Label)))
			defer func() {
				switch {
				case err != nil:
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				case out.Halt != nil:
					span.SetAttributes(attribute.String("interceptor.halted_by", out.Halt.Interceptor))
				}
				span.End()
			}()
			req = req.withContext(ctx)
		}

		decision := Continue
		if ic.Pre != nil {
			decision, err = ic.Pre(req)
			if err != nil {
				return Outcome{}, &StageError{Stage: ic.Label, Err: err}
			}
		}
		if decision.halt {
			return Outcome{Halt: &Halted{
				Interceptor: ic.Label,
				Status:      decision.status,
				Reason:      decision.reason,
			}}, nil
		}

		if ic.Post == nil {
			return next(req)
		}

		start := time.Now()
		returned := false
		defer func() {
			if returned {
				return
			}
			if p := recover(); p != nil {
				ic.Post(req, Exit{Err: &PanicError{Value: p}, Elapsed: time.Since(start)})
				panic(p)
			}
		}()

		out, err = next(req)
		returned = true

		exit := Exit{Elapsed: time.Since(start)}
		switch {
		case err != nil:
			exit.Err = err
		case out.Halt != nil:
			if !c.unwindOnStop {
				return out, nil
			}
			exit.Halt = out.Halt
		default:
			exit.Response = out.Response
		}
		ic.Post(req, exit)

		return out, err
	}
}

// StageError reports the stage an error came from.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e.Stage == TerminalStage {
		return fmt.Sprintf("terminal handler: %v", e.Err)
	}
	return fmt.Sprintf("interceptor %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PanicError is handed to post-hooks when an inner stage panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsStage reports whether err was raised by the named stage.
func IsStage(err error, stageName string) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == stageName
}
