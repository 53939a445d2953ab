package dbpool

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// Severity ranks how loudly an error should be reported.
type Severity string

const (
	SeverityTrace    Severity = "trace"
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
	SeverityFatal    Severity = "fatal"
)

var severityRank = map[Severity]int{
	SeverityTrace:    0,
	SeverityDebug:    1,
	SeverityInfo:     2,
	SeverityWarning:  3,
	SeverityError:    4,
	SeverityCritical: 5,
	SeverityFatal:    6,
}

// AtLeast reports whether s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Valid reports whether s is one of the known levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Annotation is one ordered key/value pair attached to an error.
type Annotation struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ErrorContext carries diagnostics for a single error. Annotations are
// append-only; once the owning error is sealed every mutation happens on a
// copy.
type ErrorContext struct {
	tsOnce    sync.Once
	timestamp time.Time

	operation     string
	component     string
	correlationID string
	retryCount    uint32
	severity      Severity
	annotations   []Annotation
}

const defaultComponent = "database"

// NewErrorContext creates a context for the named operation.
func NewErrorContext(operation string) *ErrorContext {
	return &ErrorContext{
		operation: operation,
		component: defaultComponent,
		severity:  SeverityError,
	}
}

// Timestamp returns when the context was first observed. The value is computed
// once and cached.
func (c *ErrorContext) Timestamp() time.Time {
	c.tsOnce.Do(func() {
		if c.timestamp.IsZero() {
			c.timestamp = time.Now().UTC()
		}
	})
	return c.timestamp
}

func (c *ErrorContext) Operation() string     { return c.operation }
func (c *ErrorContext) Component() string     { return c.component }
func (c *ErrorContext) CorrelationID() string { return c.correlationID }
func (c *ErrorContext) RetryCount() uint32    { return c.retryCount }
func (c *ErrorContext) Severity() Severity    { return c.severity }

// Annotations returns a copy of the annotations in insertion order.
func (c *ErrorContext) Annotations() []Annotation {
	out := make([]Annotation, len(c.annotations))
	copy(out, c.annotations)
	return out
}

// Annotation returns the most recent value recorded under key.
func (c *ErrorContext) Annotation(key string) (string, bool) {
	for i := len(c.annotations) - 1; i >= 0; i-- {
		if c.annotations[i].Key == key {
			return c.annotations[i].Value, true
		}
	}
	return "", false
}

func (c *ErrorContext) clone() *ErrorContext {
	ts := c.Timestamp()
	out := &ErrorContext{
		timestamp:     ts,
		operation:     c.operation,
		component:     c.component,
		correlationID: c.correlationID,
		retryCount:    c.retryCount,
		severity:      c.severity,
		annotations:   make([]Annotation, len(c.annotations), len(c.annotations)+1),
	}
	copy(out.annotations, c.annotations)
	return out
}

type correlationKey struct{}

// ContextWithCorrelationID attaches a correlation id that pools copy into the
// errors they return.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id attached to ctx.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// NewCorrelationID returns a sortable unique id.
func NewCorrelationID() string {
	return ksuid.New().String()
}
