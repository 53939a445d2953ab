package dbpool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a pool error.
type Kind string

const (
	KindConnection    Kind = "connection"
	KindPool          Kind = "pool"
	KindQuery         Kind = "query"
	KindMigration     Kind = "migration"
	KindConfiguration Kind = "configuration"
	KindTimeout       Kind = "timeout"
	KindSerialization Kind = "serialization"
	KindHealthCheck   Kind = "health_check"
)

var kindLabels = map[Kind]string{
	KindConnection:    "Connection error",
	KindPool:          "Pool error",
	KindQuery:         "Query error",
	KindMigration:     "Migration error",
	KindConfiguration: "Configuration error",
	KindTimeout:       "Timeout error",
	KindSerialization: "Serialization error",
	KindHealthCheck:   "Health check failed",
}

// Backend names the store a pool fronts.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendRedis    Backend = "redis"
	BackendInfluxDB Backend = "influxdb"
)

// PoolState describes why a pool could not serve a request.
type PoolState string

const (
	PoolStateExhausted    PoolState = "exhausted"
	PoolStateDisconnected PoolState = "disconnected"
	PoolStateUnhealthy    PoolState = "unhealthy"
	PoolStateInitializing PoolState = "initializing"
	PoolStateShuttingDown PoolState = "shutting_down"
)

// QueryType describes the statement that failed.
type QueryType string

const (
	QueryTypeSelect      QueryType = "select"
	QueryTypeInsert      QueryType = "insert"
	QueryTypeUpdate      QueryType = "update"
	QueryTypeDelete      QueryType = "delete"
	QueryTypeCreateTable QueryType = "create_table"
	QueryTypeMigration   QueryType = "migration"
	QueryTypeHealthCheck QueryType = "health_check"
	QueryTypeOther       QueryType = "other"
)

// HealthCheckType describes which probe failed.
type HealthCheckType string

const (
	HealthCheckConnection HealthCheckType = "connection"
	HealthCheckQuery      HealthCheckType = "query"
	HealthCheckPool       HealthCheckType = "pool"
	HealthCheckMigration  HealthCheckType = "migration"
)

// Error is the single error type returned across the pool boundary.
type Error struct {
	Kind    Kind
	Backend Backend
	Message string

	PoolState        PoolState
	QueryType        QueryType
	MigrationVersion string
	Operation        string
	TimeoutDuration  time.Duration
	DataType         string
	CheckType        HealthCheckType

	cause  error
	ctx    *ErrorContext
	sealed bool
}

func newError(kind Kind, backend Backend, operation, message string) *Error {
	return &Error{
		Kind:    kind,
		Backend: backend,
		Message: message,
		ctx:     NewErrorContext(operation),
	}
}

// NewConnectionError reports a failure to reach or acquire from the backend.
func NewConnectionError(backend Backend, message string) *Error {
	return newError(KindConnection, backend, "connection", message)
}

// NewPoolError reports a pool that cannot serve requests in its current state.
func NewPoolError(backend Backend, state PoolState, message string) *Error {
	e := newError(KindPool, backend, "pool", message)
	e.PoolState = state
	return e
}

// NewQueryError reports a failed statement or command.
func NewQueryError(backend Backend, queryType QueryType, message string) *Error {
	e := newError(KindQuery, backend, "query", message)
	e.QueryType = queryType
	return e
}

// NewMigrationError reports a failed schema migration.
func NewMigrationError(backend Backend, version, message string) *Error {
	e := newError(KindMigration, backend, "migration", message)
	e.MigrationVersion = version
	return e
}

// NewConfigurationError reports an invalid or unusable configuration.
func NewConfigurationError(backend Backend, message string) *Error {
	return newError(KindConfiguration, backend, "configuration", message)
}

// NewTimeoutError reports an operation that exceeded its configured budget.
// Timeouts default to warning severity.
func NewTimeoutError(backend Backend, operation string, d time.Duration) *Error {
	e := newError(KindTimeout, backend, operation, fmt.Sprintf("operation %s timed out after %s", operation, d))
	e.Operation = operation
	e.TimeoutDuration = d
	e.ctx.severity = SeverityWarning
	return e
}

// NewSerializationError reports a value that could not be encoded or decoded.
func NewSerializationError(backend Backend, dataType, message string) *Error {
	e := newError(KindSerialization, backend, "serialization", message)
	e.DataType = dataType
	return e
}

// NewHealthCheckError reports a probe that could not be executed.
func NewHealthCheckError(backend Backend, checkType HealthCheckType, message string) *Error {
	e := newError(KindHealthCheck, backend, "health_check", message)
	e.CheckType = checkType
	return e
}

func (e *Error) Error() string {
	label, ok := kindLabels[e.Kind]
	if !ok {
		label = "Database error"
	}
	return fmt.Sprintf("%s (%s): %s", label, e.Backend, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by kind and backend.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Backend == "" || t.Backend == e.Backend)
}

// Context returns the diagnostic context. It is never nil.
func (e *Error) Context() *ErrorContext {
	if e.ctx == nil {
		e.ctx = NewErrorContext("unknown")
	}
	return e.ctx
}

// Sealed reports whether the error has left the pool that produced it.
func (e *Error) Sealed() bool { return e.sealed }

// Seal freezes the error. Later enrichment works on copies.
func (e *Error) Seal() *Error {
	e.Context().Timestamp()
	e.sealed = true
	return e
}

func (e *Error) mutable() *Error {
	if !e.sealed {
		e.Context()
		return e
	}
	out := *e
	out.ctx = e.Context().clone()
	out.sealed = false
	return &out
}

// WithContext appends an annotation. A sealed error is left untouched and the
// annotation lands on an enriched copy.
func (e *Error) WithContext(key, value string) *Error {
	out := e.mutable()
	out.ctx.annotations = append(out.ctx.annotations, Annotation{Key: key, Value: value})
	return out
}

// WithCause records the native error this one was mapped from.
func (e *Error) WithCause(err error) *Error {
	out := e.mutable()
	out.cause = err
	return out
}

func (e *Error) WithSeverity(s Severity) *Error {
	out := e.mutable()
	out.ctx.severity = s
	return out
}

func (e *Error) WithComponent(component string) *Error {
	out := e.mutable()
	out.ctx.component = component
	return out
}

func (e *Error) WithCorrelationID(id string) *Error {
	out := e.mutable()
	out.ctx.correlationID = id
	return out
}

// WithRetry bumps the retry counter.
func (e *Error) WithRetry() *Error {
	out := e.mutable()
	out.ctx.retryCount++
	return out
}

// Retryable reports whether repeating the operation may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConnection, KindTimeout:
		return true
	case KindPool:
		return e.PoolState == PoolStateExhausted || e.PoolState == PoolStateInitializing
	default:
		return false
	}
}

// ShouldAlert reports whether the severity warrants paging someone.
func (e *Error) ShouldAlert() bool {
	return e.Context().Severity().AtLeast(SeverityCritical)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries a pool error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// BackendOf returns the backend of the first *Error in err's chain.
func BackendOf(err error) (Backend, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Backend, true
	}
	return "", false
}

// FromConfigError converts a configuration failure into the pool taxonomy.
// The conversion is one-way.
func FromConfigError(backend Backend, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == KindConfiguration {
		return existing
	}
	return NewConfigurationError(backend, err.Error()).WithCause(err)
}

type errorContextJSON struct {
	Timestamp     time.Time    `json:"timestamp"`
	Operation     string       `json:"operation"`
	Component     string       `json:"component"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	RetryCount    uint32       `json:"retry_count"`
	Severity      Severity     `json:"severity"`
	Annotations   []Annotation `json:"annotations,omitempty"`
}

type errorJSON struct {
	Kind             Kind             `json:"kind"`
	Backend          Backend          `json:"backend"`
	Message          string           `json:"message"`
	PoolState        PoolState        `json:"pool_state,omitempty"`
	QueryType        QueryType        `json:"query_type,omitempty"`
	MigrationVersion string           `json:"migration_version,omitempty"`
	Operation        string           `json:"operation,omitempty"`
	Timeout          string           `json:"timeout,omitempty"`
	DataType         string           `json:"data_type,omitempty"`
	CheckType        HealthCheckType  `json:"check_type,omitempty"`
	Cause            string           `json:"cause,omitempty"`
	Context          errorContextJSON `json:"context"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	c := e.Context()
	out := errorJSON{
		Kind:             e.Kind,
		Backend:          e.Backend,
		Message:          e.Message,
		PoolState:        e.PoolState,
		QueryType:        e.QueryType,
		MigrationVersion: e.MigrationVersion,
		Operation:        e.Operation,
		DataType:         e.DataType,
		CheckType:        e.CheckType,
		Context: errorContextJSON{
			Timestamp:     c.Timestamp(),
			Operation:     c.operation,
			Component:     c.component,
			CorrelationID: c.correlationID,
			RetryCount:    c.retryCount,
			Severity:      c.severity,
			Annotations:   c.annotations,
		},
	}
	if e.TimeoutDuration != 0 {
		out.Timeout = e.TimeoutDuration.String()
	}
	if e.cause != nil {
		out.Cause = e.cause.Error()
	}
	return json.Marshal(out)
}

func (e *Error) UnmarshalJSON(data []byte) error {
	var in errorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if _, ok := kindLabels[in.Kind]; !ok {
		return fmt.Errorf("unknown error kind %q", in.Kind)
	}
	var timeout time.Duration
	if in.Timeout != "" {
		d, err := time.ParseDuration(in.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", in.Timeout, err)
		}
		timeout = d
	}
	severity := in.Context.Severity
	if !severity.Valid() {
		severity = SeverityError
	}
	*e = Error{
		Kind:             in.Kind,
		Backend:          in.Backend,
		Message:          in.Message,
		PoolState:        in.PoolState,
		QueryType:        in.QueryType,
		MigrationVersion: in.MigrationVersion,
		Operation:        in.Operation,
		TimeoutDuration:  timeout,
		DataType:         in.DataType,
		CheckType:        in.CheckType,
		ctx: &ErrorContext{
			timestamp:     in.Context.Timestamp,
			operation:     in.Context.Operation,
			component:     in.Context.Component,
			correlationID: in.Context.CorrelationID,
			retryCount:    in.Context.RetryCount,
			severity:      severity,
			annotations:   in.Context.Annotations,
		},
		sealed: true,
	}
	if in.Cause != "" {
		e.cause = errors.New(in.Cause)
	}
	return nil
}
