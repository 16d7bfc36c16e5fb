package common

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging sets up the global logrus logger. An unknown level falls
// back to info.
func ConfigureLogging(level string, format string) {
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stdout)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
