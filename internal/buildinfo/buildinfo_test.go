package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ctx         *Context
		wantVersion string
		wantDate    string
		wantRelease string
	}{
		{"nil context", nil, UnknownValue, UnknownValue, "camcore@unknown"},
		{"empty values", NewContext("", "", "id"), UnknownValue, UnknownValue, "camcore@unknown"},
		{"release", NewContext("1.2.0", "2026-01-01", "id"), "1.2.0", "2026-01-01", "camcore@1.2.0"},
		{"pre-release", NewContext("1.2.0-beta.1", "2026-01-01", "id"), "1.2.0-beta.1", "2026-01-01", "camcore@1.2.0-beta.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantVersion, tt.ctx.Version())
			assert.Equal(t, tt.wantDate, tt.ctx.BuildDate())
			assert.Equal(t, tt.wantRelease, tt.ctx.Release())
		})
	}
}

func TestSystemIDIsGenerated(t *testing.T) {
	t.Parallel()

	a := NewContext("1.0.0", "", "")
	b := NewContext("1.0.0", "", "")
	assert.Len(t, a.SystemID(), 36)
	assert.NotEqual(t, a.SystemID(), b.SystemID())
	assert.Equal(t, "fixed", NewContext("", "", "fixed").SystemID())
	assert.Contains(t, a.String(), "camcore 1.0.0")
}
