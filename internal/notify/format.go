package notify

import (
	"fmt"
	"strings"
	"time"
)

// formatDateTime форматирует дату и время
func formatDateTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

// formatDuration форматирует длительность в минутах
func formatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d мин", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, mins)
}

// statusDisplay возвращает emoji и текст для статуса бронирования
func statusDisplay(status string) string {
	displays := map[string]string{
		"PENDING":   "⏳ Ожидает подтверждения",
		"CONFIRMED": "✅ Подтверждено",
		"COMPLETED": "✔️ Завершено",
		"CANCELLED": "❌ Отменено",
		"REFUNDED":  "💸 Возврат оформлен",
		"APPROVED":  "✅ Одобрена",
		"REJECTED":  "🚫 Отклонена",
	}
	if d, ok := displays[status]; ok {
		return d
	}
	return "❓ Неизвестно"
}

// formatMessage renders the text a user receives in the messenger
func formatMessage(e Event, loc *time.Location) string {
	var sb strings.Builder

	switch e.Type {
	case EventBookingRequested:
		sb.WriteString("📝 <b>Новая заявка на занятие</b>\n\n")
	case EventBookingConfirmed:
		sb.WriteString("✅ <b>Занятие подтверждено</b>\n\n")
	case EventBookingRescheduled:
		sb.WriteString("🔁 <b>Занятие перенесено</b>\n\n")
	case EventBookingCancelled:
		sb.WriteString("❌ <b>Занятие отменено</b>\n\n")
	case EventBookingRefunded:
		sb.WriteString("💸 <b>Оформлен возврат</b>\n\n")
	case EventPenaltyApplied:
		sb.WriteString("⛔️ <b>Бронирование ограничено</b>\n\n")
		if e.PenaltyUntil != nil {
			sb.WriteString(fmt.Sprintf("Слишком много поздних отмен. Новые записи недоступны до %s.\n",
				formatDateTime(e.PenaltyUntil.In(loc))))
		}
		sb.WriteString("Вы можете подать апелляцию.")
		return sb.String()
	case EventAppealReviewed:
		sb.WriteString("⚖️ <b>Апелляция рассмотрена</b>\n\n")
		sb.WriteString(fmt.Sprintf("Решение: %s\n", statusDisplay(e.Status)))
		if e.Reason != "" {
			sb.WriteString(fmt.Sprintf("Комментарий: %s\n", e.Reason))
		}
		return sb.String()
	default:
		sb.WriteString(fmt.Sprintf("%s\n\n", e.Type))
	}

	sb.WriteString(fmt.Sprintf("Бронирование #%d\n", e.BookingID))
	if e.ScheduledAt != nil {
		sb.WriteString(fmt.Sprintf("🕐 %s (%s)\n", formatDateTime(e.ScheduledAt.In(loc)), formatDuration(e.Duration)))
	}
	if e.Status != "" {
		sb.WriteString(fmt.Sprintf("Статус: %s\n", statusDisplay(e.Status)))
	}
	if e.Type == EventBookingCancelled && e.IsLate {
		sb.WriteString("⚠️ Поздняя отмена\n")
	}
	if e.RefundReference != "" {
		sb.WriteString(fmt.Sprintf("Возврат: %s ₽ (%s)\n", e.Amount, e.RefundReference))
	}
	return sb.String()
}
