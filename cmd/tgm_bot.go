package main

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// initTgBot connects the bot when TELEGRAM_API_TOKEN is set.
func (a *App) initTgBot() error {
	if a.Config.TelegramApiToken == "" {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(a.Config.TelegramApiToken)
	if err != nil {
		return err
	}
	bot.Debug = false

	a.TGM = bot

	return nil
}
