package usecasees

import (
	"context"
	"strings"
	"testing"
	"time"

	"flushbot/internal/controllers/mocks"
	"flushbot/internal/usecasees/structs"

	tgmBotAPI "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type staticStatuses []structs.EngineStatus

func (s staticStatuses) Statuses() []structs.EngineStatus { return s }

func command(chatID int64, cmd string) tgmBotAPI.Update {
	text := "/" + cmd
	return tgmBotAPI.Update{
		Message: &tgmBotAPI.Message{
			Chat: &tgmBotAPI.Chat{ID: chatID},
			Text: text,
			Entities: []tgmBotAPI.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len(text)},
			},
		},
	}
}

func runCommands(t *testing.T, statuses StatusSource, tgm *mocks.TgmCtrl, updates ...tgmBotAPI.Update) {
	t.Helper()

	ch := make(chan tgmBotAPI.Update, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	tgm.On("GetUpdates").Return(tgmBotAPI.UpdatesChannel(ch))

	NewTgmUseCase(statuses, tgm, "UTC", quietLogger()).CommandProcessor(context.Background())
}

func TestTgmUseCase_CommandProcessor(t *testing.T) {
	statuses := staticStatuses{
		{Name: "a", Exchange: "BINANCE", Symbol: "BTCUSDT", Interval: "1m", Phase: structs.PhaseFlat, Wallet: "100", Floor: "70"},
		{Name: "b", Exchange: "OKX", Symbol: "ETHUSDT", Interval: "5m", Phase: structs.PhaseFlat, Stopped: true, StopReason: "max_drawdown", UpdatedAt: t0},
	}

	t.Run("status lists every engine", func(t *testing.T) {
		tgm := &mocks.TgmCtrl{}
		tgm.On("CheckChatID", int64(1)).Return(true)
		tgm.On("Send", mock.MatchedBy(func(s string) bool {
			return strings.Contains(s, "a\tBINANCE BTCUSDT 1m") &&
				strings.Contains(s, "stopped:\tmax_drawdown")
		})).Return(nil).Once()

		runCommands(t, statuses, tgm, command(1, "status"))
		tgm.AssertExpectations(t)
	})

	t.Run("stopped lists only stopped engines", func(t *testing.T) {
		tgm := &mocks.TgmCtrl{}
		tgm.On("CheckChatID", int64(1)).Return(true)
		tgm.On("Send", mock.MatchedBy(func(s string) bool {
			return !strings.Contains(s, "BTCUSDT") && strings.Contains(s, "OKX ETHUSDT")
		})).Return(nil).Once()

		runCommands(t, statuses, tgm, command(1, "stopped"))
		tgm.AssertExpectations(t)
	})

	t.Run("foreign chat is ignored", func(t *testing.T) {
		tgm := &mocks.TgmCtrl{}
		tgm.On("CheckChatID", int64(2)).Return(false)

		runCommands(t, statuses, tgm, command(2, "status"))
		tgm.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("ping", func(t *testing.T) {
		tgm := &mocks.TgmCtrl{}
		tgm.On("CheckChatID", int64(1)).Return(true)
		tgm.On("Send", mock.MatchedBy(func(s string) bool {
			return strings.HasPrefix(s, "PONG")
		})).Return(nil).Once()

		runCommands(t, staticStatuses{}, tgm, command(1, "ping"))
		tgm.AssertExpectations(t)
	})
}

func TestFormatStatus(t *testing.T) {
	out := formatStatus(structs.EngineStatus{
		Name:      "a",
		Exchange:  "BINANCE",
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		Phase:     structs.PhaseInPosition,
		Position:  "0.5",
		CloseOnly: true,
		UpdatedAt: t0,
	}, time.UTC)

	assert.Contains(t, out, "phase:\tIN_POSITION")
	assert.Contains(t, out, "position:\t0.5 @ ")
	assert.Contains(t, out, "close only")
	assert.NotContains(t, out, "stopped:")
}
