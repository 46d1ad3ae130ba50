package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// initLogRus builds the process logger. It runs before the config is loaded
// and again after it to pick up LOG_LEVEL.
func (a *App) initLogRus() {
	if a.LogRus == nil {
		a.LogRus = logrus.New()
		a.LogRus.SetOutput(os.Stdout)
		a.LogRus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := ""
	if a.Config != nil {
		level = a.Config.LogLevel
	}

	switch level {
	case "DEBUG":
		a.LogRus.SetLevel(logrus.DebugLevel)
	case "ERROR":
		a.LogRus.SetLevel(logrus.ErrorLevel)
	default:
		a.LogRus.SetLevel(logrus.InfoLevel)
	}
}
