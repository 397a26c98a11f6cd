package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// MessageSender is the part of *bot.Bot the notifier uses
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// UserLookup resolves recipients to their messenger accounts
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// TelegramNotifier sends notifications as Telegram messages.
// Telegram allows about 30 messages per second per bot, the limiter keeps us below that.
type TelegramNotifier struct {
	sender   MessageSender
	users    UserLookup
	limiter  *rate.Limiter
	location *time.Location
	logger   *zap.Logger
}

func NewTelegramNotifier(sender MessageSender, users UserLookup, perSecond float64, loc *time.Location, logger *zap.Logger) *TelegramNotifier {
	if perSecond <= 0 {
		perSecond = 25
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramNotifier{
		sender:   sender,
		users:    users,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		location: loc,
		logger:   logger,
	}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) SendBookingConfirmation(ctx context.Context, e Event) error {
	return n.Send(ctx, e)
}

func (n *TelegramNotifier) SendBookingCancellation(ctx context.Context, e Event) error {
	return n.Send(ctx, e)
}

// Send delivers the message to every recipient with a Telegram account.
// A failing recipient does not stop delivery to the others.
func (n *TelegramNotifier) Send(ctx context.Context, e Event) error {
	text := formatMessage(e, n.location)

	var errs []error
	for _, userID := range e.Recipients() {
		user, err := n.users.GetByID(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("get recipient %d: %w", userID, err))
			continue
		}
		if user == nil || user.TelegramID == nil {
			n.logger.Debug("Recipient has no telegram account", zap.Int64("user_id", userID))
			continue
		}

		// ошибка лимитера значит, что контекст закончился: остальным тоже не отправить
		if err := n.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait rate limiter: %w", err))
			break
		}

		_, err = n.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    *user.TelegramID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("send telegram message to %d: %w", *user.TelegramID, err))
		}
	}
	return errors.Join(errs...)
}
