package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camcore/internal/conf"
)

func TestRootCommandTree(t *testing.T) {
	root := RootCommand(&conf.Settings{})

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "devices", "version"})

	runCmd, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	for _, flag := range []string{"lens", "fps", "quality", "grants", "telemetry", "listen", "mqtt", "no-input"} {
		assert.NotNil(t, runCmd.Flags().Lookup(flag), "run flag %s", flag)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestVersionCommandSkipsConfig(t *testing.T) {
	settings := &conf.Settings{}
	root := RootCommand(settings)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "camcore ")
	assert.Empty(t, settings.Camera.Lens, "version does not load settings")
}
