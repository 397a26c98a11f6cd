package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes every notification to the application log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) SendBookingConfirmation(ctx context.Context, e Event) error {
	return n.Send(ctx, e)
}

func (n *LogNotifier) SendBookingCancellation(ctx context.Context, e Event) error {
	return n.Send(ctx, e)
}

func (n *LogNotifier) Send(_ context.Context, e Event) error {
	n.logger.Info("Notification",
		zap.String("type", string(e.Type)),
		zap.Int64("booking_id", e.BookingID),
		zap.Int64("appeal_id", e.AppealID),
		zap.Int64s("recipients", e.Recipients()),
		zap.String("status", e.Status),
	)
	return nil
}
