// Package buildinfo holds build-time metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata that was not injected at build time
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/tphakala/camcore/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
)

// Context contains build-time metadata that is not user-configurable
type Context struct {
	version   string
	buildDate string
	systemID  string
}

// NewContext creates a context. An empty systemID is replaced by a random one.
func NewContext(version, buildDate, systemID string) *Context {
	if systemID == "" {
		systemID = uuid.NewString()
	}
	return &Context{version: version, buildDate: buildDate, systemID: systemID}
}

// Current returns the metadata of the running binary. Without ldflags the
// module version recorded by the Go toolchain is used.
func Current() *Context {
	v := version
	if v == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	return NewContext(v, buildDate, "")
}

// Version returns the version string
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build date string
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// SystemID returns the identifier of this process
func (c *Context) SystemID() string {
	if c == nil {
		return UnknownValue
	}
	return c.systemID
}

// Release returns the release name reported to error telemetry
func (c *Context) Release() string {
	return "camcore@" + c.Version()
}

// String returns a one-line summary for the version command
func (c *Context) String() string {
	return fmt.Sprintf("camcore %s (built %s, %s/%s, %s)",
		c.Version(), c.BuildDate(), runtime.GOOS, runtime.GOARCH, runtime.Version())
}
