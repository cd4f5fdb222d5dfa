package camera

import (
	"strings"

	"github.com/tphakala/camcore/internal/logger"
)

// Capability is a named runtime permission
type Capability string

const (
	CapabilityCamera     Capability = "camera"
	CapabilityMicrophone Capability = "microphone"
)

// PermissionSource reports the current grant of a capability. It is queried
// on every gated call, so grant changes apply to the next call.
type PermissionSource interface {
	Granted(c Capability) bool
}

// PermissionRequester asks the user for missing capabilities. The outcome is
// not reported back; callers retry the gated operation after a grant.
type PermissionRequester interface {
	RequestPermissions(caps []Capability)
}

// PermissionGate evaluates capability grants for gated operations
type PermissionGate struct {
	source    PermissionSource
	requester PermissionRequester
}

// NewPermissionGate creates a gate. A nil source denies everything; a nil
// requester drops requests.
func NewPermissionGate(source PermissionSource, requester PermissionRequester) *PermissionGate {
	return &PermissionGate{source: source, requester: requester}
}

// AllGranted reports whether every capability is granted right now
func (g *PermissionGate) AllGranted(caps ...Capability) bool {
	return len(g.Missing(caps...)) == 0
}

// Missing returns the capabilities that are not granted right now
func (g *PermissionGate) Missing(caps ...Capability) []Capability {
	var missing []Capability
	for _, c := range caps {
		if g.source == nil || !g.source.Granted(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Request forwards a permission request for the given capabilities
func (g *PermissionGate) Request(caps ...Capability) {
	if len(caps) == 0 {
		return
	}
	for _, c := range caps {
		GetMetrics().RecordPermissionCheck(c, false)
	}
	GetLogger().Info("requesting permissions", logger.String("capabilities", capabilityNames(caps)))
	if g.requester != nil {
		g.requester.RequestPermissions(caps)
	}
}

func capabilityNames(caps []Capability) string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
}
