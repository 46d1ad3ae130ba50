package usecasees

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flushbot/internal/controllers"
	"flushbot/internal/usecasees/structs"

	"github.com/sirupsen/logrus"
)

// StatusSource lists the engine statuses, the Scheduler is one.
type StatusSource interface {
	Statuses() []structs.EngineStatus
}

type tgmUseCase struct {
	engines       StatusSource
	tgmController controllers.TgmCtrl
	loc           *time.Location
	logger        *logrus.Logger
}

func NewTgmUseCase(
	engines StatusSource,
	tgmController controllers.TgmCtrl,
	timezone string,
	logger *logrus.Logger,
) *tgmUseCase {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.WithField("method", "NewTgmUseCase").WithError(err).Debug("timezone")
		loc = time.UTC
	}

	return &tgmUseCase{
		engines:       engines,
		tgmController: tgmController,
		loc:           loc,
		logger:        logger,
	}
}

// CommandProcessor answers bot commands from the configured chat until ctx
// is done.
func (u *tgmUseCase) CommandProcessor(ctx context.Context) {
	updates := u.tgmController.GetUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !u.tgmController.CheckChatID(update.Message.Chat.ID) {
				continue
			}

			switch update.Message.Command() {
			case "ping":
				u.pingProc()
			case "status":
				u.statusProc(false)
			case "stopped":
				u.statusProc(true)
			}
		}
	}
}

func (u *tgmUseCase) statusProc(onlyStopped bool) {
	var b strings.Builder
	b.WriteString("[ Engines ]\n")

	n := 0
	for _, s := range u.engines.Statuses() {
		if onlyStopped && !s.Stopped {
			continue
		}
		n++
		b.WriteString(formatStatus(s, u.loc))
	}
	if n == 0 {
		b.WriteString("none\n")
	}

	if err := u.tgmController.Send(b.String()); err != nil {
		u.logger.WithField("method", "statusProc").WithError(err).Error("send status")
	}
}

func formatStatus(s structs.EngineStatus, loc *time.Location) string {
	out := fmt.Sprintf("%s\t%s %s %s\n"+
		"phase:\t%s\n"+
		"position:\t%s @ %s\n"+
		"wallet:\t%s (floor %s)\n",
		s.Name, s.Exchange, s.Symbol, s.Interval,
		s.Phase,
		s.Position, s.EntryPrice,
		s.Wallet, s.Floor,
	)
	if s.CloseOnly {
		out += "close only\n"
	}
	if s.Stopped {
		out += fmt.Sprintf("stopped:\t%s\n", s.StopReason)
	}
	if !s.UpdatedAt.IsZero() {
		out += fmt.Sprintf("updated:\t%s\n", s.UpdatedAt.In(loc).Format(time.RFC822))
	}

	return out + "\n"
}

func (u *tgmUseCase) pingProc() {
	if err := u.tgmController.Send(
		fmt.Sprintf(
			"PONG [ %s ]",
			time.Now().In(u.loc).Format(time.RFC822),
		)); err != nil {
		u.logger.WithField("method", "pingProc").Debug(err)
	}
}
