package main

import (
	"github.com/ic2hrmk/promtail"
	"github.com/sirupsen/logrus"
)

// initLoki ships every log line of Info and above to Loki when LOKI_URL is
// set.
func (a *App) initLoki() error {
	if a.Config.LokiURL == "" {
		return nil
	}

	identifiers := map[string]string{
		"instanceId": a.Name,
	}

	promTail, err := promtail.NewJSONv1Client(a.Config.LokiURL, identifiers)
	if err != nil {
		return err
	}

	a.PromTail = promTail
	a.LogRus.AddHook(&lokiHook{client: promTail})

	return nil
}

type lokiHook struct {
	client promtail.Client
}

func (h *lokiHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

func (h *lokiHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}

	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		h.client.Errorf("%s", line)
	case logrus.WarnLevel:
		h.client.Warnf("%s", line)
	default:
		h.client.Infof("%s", line)
	}

	return nil
}
