package controllers

import (
	"context"
	"net/http"
	"net/url"

	tgmBotAPI "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

//go:generate mockery --case=snake --name=ClientCtrl
//go:generate mockery --case=snake --name=CryptoCtrl
//go:generate mockery --case=snake --name=TgmCtrl
//go:generate mockery --case=snake --name=NotifySink
//go:generate mockery --case=snake --name=Notifier

type ClientCtrl interface {
	Send(ctx context.Context, method string, url *url.URL, body []byte, headers http.Header) ([]byte, error)
}

type CryptoCtrl interface {
	GetSignature(query string) string
	GetSignatureBase64(message string) string
	GetSignatureSHA512(message string) string
}

type TgmCtrl interface {
	Send(text string) error
	CheckChatID(chatID int64) bool
	Update(msgID int, text string) error
	GetUpdates() tgmBotAPI.UpdatesChannel
}

// NotifySink delivers one message synchronously.
type NotifySink interface {
	Notify(text, channel string) error
}

// Notifier is the fire and forget sink used by engines.
type Notifier interface {
	Notify(text, channel string)
}
