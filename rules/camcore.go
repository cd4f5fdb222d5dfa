//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// StdlibLog flags the standard log package. Everything logs through
// internal/logger so module levels and file output apply.
func StdlibLog(m dsl.Matcher) {
	m.Import("log")

	m.Match(`log.$fn($*_)`).
		Where(m.File().Imports("log") && m["fn"].Text.Matches(`^(Print|Fatal|Panic)`)).
		Report("use logger.Global().Module(...) instead of log.$fn")
}

// StdErrorsNew flags bare errors from the standard library outside the
// errors and logger packages. Those lose the component and category that
// telemetry and the HTTP status mapping rely on.
func StdErrorsNew(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().Imports("errors") &&
			!m.File().PkgPath.Matches(`internal/(errors|logger)$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("use errors.NewStd($msg) or the builder from internal/errors")

	m.Match(`fmt.Errorf($*_)`).
		Where(m.File().PkgPath.Matches(`internal/camera`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("camera errors go through the internal/errors builder with ComponentCamera")
}

// LogFieldKeys keeps structured log keys in snake_case so they line up
// with the event payloads.
func LogFieldKeys(m dsl.Matcher) {
	m.Match(
		`logger.String($k, $_)`,
		`logger.Int($k, $_)`,
		`logger.Int64($k, $_)`,
		`logger.Uint64($k, $_)`,
		`logger.Bool($k, $_)`,
		`logger.Duration($k, $_)`,
		`logger.Any($k, $_)`,
	).
		Where(m["k"].Const && !m["k"].Text.Matches(`^"[a-z0-9_]+"$`)).
		Report("log field key $k should be snake_case")
}

// ExecutorBackgroundContext flags waiting on the main executor without a
// deadline outside tests and shutdown paths, which can hang the caller
// when the executor is stalled.
func ExecutorBackgroundContext(m dsl.Matcher) {
	m.Match(`$exec.Call(context.Background(), $_)`).
		Where(m["exec"].Type.Is("*camera.MainExecutor") &&
			!m.File().Name.Matches(`(_test|app)\.go$`)).
		Report("pass a context with a deadline to $exec.Call")
}
