package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every error built while it is installed
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter forwards errors to Sentry after scrubbing credentials
type SentryReporter struct{}

// InitSentry initializes the Sentry SDK and installs a reporter. An empty
// DSN leaves telemetry off.
func InitSentry(dsn, release string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return New(err).
			Component("telemetry").
			Category(CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}
	SetTelemetryReporter(SentryReporter{})
	return nil
}

// FlushSentry waits up to timeout for queued events
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

func (SentryReporter) IsEnabled() bool { return true }

// ReportError sends ee once; later calls for the same error are ignored
func (SentryReporter) ReportError(ee *EnhancedError) {
	if !ee.markReported() {
		return
	}

	title := errorTitle(ee)
	component := ee.GetComponent()
	message := scrubMessageForPrivacy(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	level := sentryLevel(ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessageForPrivacy(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Level = level
		event.Message = message
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})
}

// errorTitle builds "Component Category Operation", e.g.
// "Mediastore Database Error Create Media"
func errorTitle(ee *EnhancedError) string {
	var parts []string
	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		parts = append(parts, titleWords(c))
	}
	if c := categoryTitle(ee.Category); c != "" {
		parts = append(parts, c)
	}
	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		parts = append(parts, titleWords(op))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(parts, " ")
}

var categoryTitles = map[ErrorCategory]string{
	CategoryProvider:      "Camera Provider Error",
	CategoryPermission:    "Permission Error",
	CategoryCapture:       "Still Capture Error",
	CategoryRecording:     "Recording Error",
	CategoryAudioSource:   "Audio Source Error",
	CategoryValidation:    "Validation Error",
	CategoryDatabase:      "Database Error",
	CategoryFileIO:        "File I/O Error",
	CategoryNetwork:       "Network Error",
	CategoryMQTTPublish:   "MQTT Publish Error",
	CategoryConfiguration: "Configuration Error",
}

func categoryTitle(c ErrorCategory) string {
	if title, ok := categoryTitles[c]; ok {
		return title
	}
	return string(c)
}

// titleWords upper-cases the first letter of each word separated by
// underscores or dots
func titleWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '.' || r == ' ' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func sentryLevel(c ErrorCategory) sentry.Level {
	switch c {
	case CategoryCapture, CategoryRecording, CategoryFileIO, CategoryNetwork, CategoryMQTTPublish:
		return sentry.LevelWarning
	case CategoryPermission, CategoryCancellation, CategoryState, CategoryValidation:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

var (
	reporterMu sync.RWMutex
	reporter   TelemetryReporter
)

// SetTelemetryReporter installs r; nil turns reporting off
func SetTelemetryReporter(r TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
	telemetryActive.Store(r != nil && r.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

var (
	urlQuery      = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	brokerCreds   = regexp.MustCompile(`(tcp|ssl|ws|wss|mqtt|mqtts)://[^:@/\s]+:[^@/\s]+@`)
	credentialRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)api[_-]?key[=:]\S+`),
		regexp.MustCompile(`(?i)token[=:]\S+`),
		regexp.MustCompile(`(?i)password[=:]\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
)

// scrubMessageForPrivacy removes broker credentials, query strings and
// credential-looking tokens
func scrubMessageForPrivacy(message string) string {
	s := brokerCreds.ReplaceAllString(message, "$1://[REDACTED]@")
	s = urlQuery.ReplaceAllString(s, "$1?[REDACTED]")
	for _, re := range credentialRes {
		s = re.ReplaceAllString(s, "[CREDENTIAL_REDACTED]")
	}
	return s
}
