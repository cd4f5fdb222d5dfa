// Package errors wraps errors with the component and category that logging,
// telemetry and the HTTP layer key on. It also passes through the standard
// library helpers so callers import a single errors package.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for telemetry and status mapping
type ErrorCategory string

const (
	CategoryProvider      ErrorCategory = "camera-provider"
	CategoryPermission    ErrorCategory = "permission"
	CategoryCapture       ErrorCategory = "still-capture"
	CategoryRecording     ErrorCategory = "recording"
	CategoryAudioSource   ErrorCategory = "audio-source"
	CategoryState         ErrorCategory = "state"
	CategoryValidation    ErrorCategory = "validation"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryDatabase      ErrorCategory = "database"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryNetwork       ErrorCategory = "network"
	CategoryMQTTPublish   ErrorCategory = "mqtt-publish"
	CategorySystem        ErrorCategory = "system-resource"
	CategoryCancellation  ErrorCategory = "cancellation" // superseded or cancelled work
	CategoryLimit         ErrorCategory = "limit"        // full queues and similar
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when no registered package is on the stack
const ComponentUnknown = "unknown"

// EnhancedError carries an error together with where it came from.
// Error returns the wrapped message unchanged.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time

	mu        sync.Mutex
	component string
	reported  bool
}

func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, anything else through the
// wrapped chain.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the component that raised the error
func (ee *EnhancedError) GetComponent() string {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	return ee.component
}

// GetCategory returns the category as a string
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the context map
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// markReported returns false if the error was already reported
func (ee *EnhancedError) markReported() bool {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	if ee.reported {
		return false
	}
	ee.reported = true
	return true
}

// ErrorBuilder assembles an EnhancedError
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder around err
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder around a formatted error
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the raising component. Without it the component is
// looked up from the call stack when telemetry is active.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context attaches a key/value pair
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Timing records the operation name and how long it ran
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).Context("duration_ms", duration.Milliseconds())
}

// telemetryActive lets Build skip the stack walk when nothing reports
var telemetryActive atomic.Bool

// Build creates the error and hands it to the telemetry reporter, if any
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.err == nil {
		eb.err = NewStd("unspecified error")
	}

	reporting := telemetryActive.Load()
	component := eb.component
	if component == "" {
		component = ComponentUnknown
		if reporting {
			component = componentFromStack()
		}
	}
	category := eb.category
	if category == "" {
		category = detectCategory(eb.err, component)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: component,
	}
	if reporting {
		reportToTelemetry(ee)
	}
	return ee
}

const ownPackage = "github.com/tphakala/camcore/internal/errors."

// components maps package path fragments to component names. The longest
// matching fragment wins so camera/virtual is not reported as camera.
var components = map[string]string{
	"internal/camera/virtual": "camera.virtual",
	"internal/camera/audio":   "camera.audio",
	"internal/camera":         "camera",
	"internal/mediastore":     "mediastore",
	"internal/permission":     "permission",
	"internal/events":         "events",
	"internal/mqtt":           "mqtt",
	"internal/observability":  "observability",
	"internal/conf":           "configuration",
	"internal/app":            "app",
}

func componentFromStack() string {
	pcs := make([]uintptr, 32)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(3, pcs)])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, ownPackage) {
			if c := lookupComponent(frame.Function); c != ComponentUnknown {
				return c
			}
		}
		if !more {
			return ComponentUnknown
		}
	}
}

func lookupComponent(funcName string) string {
	best := ""
	component := ComponentUnknown
	for fragment, name := range components {
		if len(fragment) > len(best) && strings.Contains(funcName, fragment) {
			best, component = fragment, name
		}
	}
	return component
}

// detectCategory inherits the category of a wrapped EnhancedError, then
// falls back to message keywords and finally the component.
func detectCategory(err error, component string) ErrorCategory {
	var inner *EnhancedError
	if stderrors.As(err, &inner) && inner.Category != "" {
		return inner.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"):
		return CategoryPermission
	case strings.Contains(msg, "file"), strings.Contains(msg, "open"), strings.Contains(msg, "write"):
		return CategoryFileIO
	case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"):
		return CategoryNetwork
	case strings.Contains(msg, "invalid"):
		return CategoryValidation
	}

	switch component {
	case "mediastore":
		return CategoryDatabase
	case "mqtt":
		return CategoryMQTTPublish
	case "configuration":
		return CategoryConfiguration
	}
	return CategoryGeneric
}

// NewStd creates a plain error
func NewStd(text string) error {
	return stderrors.New(text)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory reports whether err wraps an EnhancedError of the category
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return stderrors.As(err, &ee) && ee.Category == category
}

// IsNotFound reports whether err is a CategoryNotFound error
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}
