package config

import (
	"strings"

	"ratchet/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchLogLevel re-reads path on every write and applies app.log_level.
// Everything else in the file needs a restart.
func WatchLogLevel(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		logger.Warnf("config watch disabled (%s): %v", path, err)
		return nil
	}
	current := logger.Level()
	v.OnConfigChange(func(evt fsnotify.Event) {
		level := strings.ToLower(strings.TrimSpace(v.GetString("app.log_level")))
		if level == "" || level == current {
			return
		}
		logger.SetLevel(level)
		current = logger.Level()
		logger.Infof("log level changed to %s (%s)", current, evt.Name)
	})
	v.WatchConfig()
	return v
}
