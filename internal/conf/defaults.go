// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with validation and the embedded config.yaml
const (
	DefaultFPS          = 30
	DefaultWidth        = 640
	DefaultHeight       = 480
	DefaultMaxImages    = 4
	DefaultSampleRate   = 48000
	DefaultChannels     = 1
	DefaultAudioBuffer  = 48000 * 2 * 4 // four seconds of mono 16-bit PCM
	DefaultListen       = "127.0.0.1:8090"
	DefaultMQTTTopic    = "camcore"
	DefaultEmitInterval = time.Second
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("camera.lens", "back")
	v.SetDefault("camera.fps", DefaultFPS)
	v.SetDefault("camera.width", DefaultWidth)
	v.SetDefault("camera.height", DefaultHeight)
	v.SetDefault("camera.maximages", DefaultMaxImages)
	v.SetDefault("camera.quality", "hd")
	v.SetDefault("camera.acquiredelay", 200*time.Millisecond)
	v.SetDefault("camera.analysis.enabled", true)
	v.SetDefault("camera.analysis.emitinterval", DefaultEmitInterval)

	v.SetDefault("output.photopath", "media/photos")
	v.SetDefault("output.videopath", "media/videos")
	v.SetDefault("output.database", "media/camcore.db")

	v.SetDefault("permissions.file", "")
	v.SetDefault("permissions.camera", true)
	v.SetDefault("permissions.microphone", true)

	v.SetDefault("audio.source", "silence")
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.samplerate", DefaultSampleRate)
	v.SetDefault("audio.channels", DefaultChannels)
	v.SetDefault("audio.buffersize", DefaultAudioBuffer)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/camcore.log")
	v.SetDefault("logging.file_output.level", "debug")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", DefaultListen)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", DefaultMQTTTopic)
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.passwordfile", "")
}
