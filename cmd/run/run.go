package run

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/camcore/internal/app"
	"github.com/tphakala/camcore/internal/conf"
	"github.com/tphakala/camcore/internal/logger"
)

// Command creates the command that runs the capture pipeline.
func Command(settings *conf.Settings) *cobra.Command {
	var noInput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture pipeline",
		Long: "Bind the camera and serve photo and recording commands from standard input " +
			"and, when telemetry is enabled, from the HTTP control API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Global().Module("main").Debug("effective settings",
				logger.Any("settings", settings.Redacted()))

			a, err := app.New(settings)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var in io.Reader = cmd.InOrStdin()
			if noInput {
				in = nil
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "camcore running, type help for commands")
			}
			return a.Run(ctx, in, cmd.OutOrStdout())
		},
	}

	if err := setupFlags(cmd, &noInput); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the run command and binds them to
// their configuration keys.
func setupFlags(cmd *cobra.Command, noInput *bool) error {
	flags := cmd.Flags()
	flags.String("lens", "back", "Camera lens facing (\"back\" or \"front\")")
	flags.Int("fps", conf.DefaultFPS, "Frame rate of the camera")
	flags.String("quality", "hd", "Preferred recording quality (\"fhd\", \"hd\" or \"sd\")")
	flags.String("grants", "", "YAML file holding camera and microphone grants")
	flags.String("audio", "silence", "Recording audio source (\"malgo\" or \"silence\")")
	flags.String("audio-device", "", "Audio capture device name")
	flags.Bool("telemetry", false, "Enable the metrics and control HTTP endpoint")
	flags.String("listen", conf.DefaultListen, "Listen address of the HTTP endpoint")
	flags.Bool("mqtt", false, "Publish events to MQTT")
	flags.String("broker", "", "MQTT broker URL")
	flags.BoolVar(noInput, "no-input", false, "Do not read commands from standard input")

	bindings := map[string]string{
		"camera.lens":       "lens",
		"camera.fps":        "fps",
		"camera.quality":    "quality",
		"permissions.file":  "grants",
		"audio.source":      "audio",
		"audio.device":      "audio-device",
		"telemetry.enabled": "telemetry",
		"telemetry.listen":  "listen",
		"mqtt.enabled":      "mqtt",
		"mqtt.broker":       "broker",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}

	return nil
}
