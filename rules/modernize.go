//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the manual Add/Done goroutine pattern that
// sync.WaitGroup.Go replaces (Go 1.25+).
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    work()
//	}()
//
// becomes
//
//	wg.Go(work)
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern (Go 1.25+)").
		Suggest("$wg.Go(func() { $body })")

	m.Match(`$wg.Add(1); go $fn($*args)`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go and drop the Done call in $fn (Go 1.25+)")
}

// SlicesClone detects append-based slice copies.
//
// See: https://pkg.go.dev/slices#Clone
func SlicesClone(m dsl.Matcher) {
	m.Match(`append([]byte(nil), $b...)`, `append([]byte{}, $b...)`).
		Report("use bytes.Clone($b) (Go 1.20+)")

	m.Match(`append([]$typ(nil), $s...)`, `append([]$typ{}, $s...)`).
		Where(!m["typ"].Text.Matches(`^byte$`)).
		Report("use slices.Clone($s) instead of append([]$typ(nil), $s...) (Go 1.21+)")
}

// RangeOverInteger detects counting loops that range over an int instead.
// Benchmark loops over b.N are left to b.Loop.
//
// See: https://go.dev/doc/go1.22#language
func RangeOverInteger(m dsl.Matcher) {
	m.Match(`for $i := 0; $i < $n; $i++ { $*body }`).
		Where(!m["n"].Text.Matches(`.*\.N$`)).
		Report("use for $i := range $n (Go 1.22+)").
		Suggest("for $i := range $n { $body }")
}

// MinMaxBuiltin detects float conversions through math.Min/math.Max on
// integers, which the min and max builtins handle directly.
func MinMaxBuiltin(m dsl.Matcher) {
	m.Match(`int(math.Min(float64($a), float64($b)))`).
		Report("use min($a, $b) (Go 1.21+)").
		Suggest("min($a, $b)")

	m.Match(`int(math.Max(float64($a), float64($b)))`).
		Report("use max($a, $b) (Go 1.21+)").
		Suggest("max($a, $b)")
}

// JoinHostPort flags host:port formatting that breaks on IPv6 literals.
func JoinHostPort(m dsl.Matcher) {
	m.Match(
		`fmt.Sprintf("%s:%d", $host, $port)`,
		`fmt.Sprintf("%v:%d", $host, $port)`,
	).
		Report("use net.JoinHostPort($host, strconv.Itoa($port)) (handles IPv6 correctly)")
}

// DeferredTimeSince catches durations measured when the defer statement
// runs instead of when the function returns.
func DeferredTimeSince(m dsl.Matcher) {
	m.Match(
		`defer $fn(time.Since($start))`,
		`defer $fn(time.Since($start), $*args)`,
		`defer $fn($arg, time.Since($start))`,
	).
		Report("time.Since($start) is evaluated at defer time; wrap in func() to measure the call")
}
