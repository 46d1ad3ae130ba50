package main

import (
	"flushbot/internal/controllers"
)

// initNotifier fans notifications out to Telegram and Discord, whichever
// are configured.
func (a *App) initNotifier(tgm *controllers.TgmController) *controllers.NotifyController {
	var sinks []controllers.NotifySink

	if tgm != nil {
		sinks = append(sinks, tgm)
	}
	if a.Config.DiscordWebhookURL != "" || a.Config.DiscordErrorChannel != "" {
		sinks = append(sinks, controllers.NewDiscordController(
			a.HTTPClient,
			a.Config.DiscordWebhookURL,
			map[string]string{a.Config.Strategy.AlertsChannel: a.Config.DiscordErrorChannel},
		))
	}

	return controllers.NewNotifyController(a.LogRus, sinks...)
}
