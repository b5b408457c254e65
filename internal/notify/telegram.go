package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"physioheal/internal/domain"
	"physioheal/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// ManagerNotifier sends a Telegram message to every manager chat.
type ManagerNotifier struct {
	bot      domain.TelegramSender
	managers []int64
	logger   *zerolog.Logger
}

func NewManagerNotifier(bot domain.TelegramSender, managers []int64, logger *zerolog.Logger) *ManagerNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ManagerNotifier{
		bot:      bot,
		managers: append([]int64(nil), managers...),
		logger:   logger,
	}
}

// NotifyBooking отправляет менеджерам карточку новой записи
func (n *ManagerNotifier) NotifyBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return errors.New("booking is nil")
	}
	return n.broadcast(ctx, FormatBooking(booking))
}

// NotifyContact отправляет менеджерам сообщение из формы обратной связи
func (n *ManagerNotifier) NotifyContact(ctx context.Context, msg *models.ContactMessage) error {
	if msg == nil {
		return errors.New("contact message is nil")
	}
	return n.broadcast(ctx, FormatContact(msg))
}

func (n *ManagerNotifier) broadcast(ctx context.Context, text string) error {
	if n.bot == nil || len(n.managers) == 0 {
		return nil
	}

	var errs []error
	for _, chatID := range n.managers {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to notify manager")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// FormatBooking renders a booking as a plain-text card.
func FormatBooking(b *models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "New booking #%d\n", b.ID)
	fmt.Fprintf(&sb, "Name: %s\n", b.FullName())
	fmt.Fprintf(&sb, "Phone: %s\n", b.Phone)
	if b.Email != "" {
		fmt.Fprintf(&sb, "Email: %s\n", b.Email)
	}
	fmt.Fprintf(&sb, "Service: %s\n", b.Service)
	fmt.Fprintf(&sb, "When: %s, %s\n", b.Date.Format("January 2, 2006"), b.TimeSlot)
	fmt.Fprintf(&sb, "Condition: %s", b.Message)
	return sb.String()
}

func FormatContact(m *models.ContactMessage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "New message #%d\n", m.ID)
	fmt.Fprintf(&sb, "Name: %s\n", m.Name)
	fmt.Fprintf(&sb, "Email: %s", m.Email)
	if m.Phone != "" {
		fmt.Fprintf(&sb, "\nPhone: %s", m.Phone)
	}
	if m.Service != "" {
		fmt.Fprintf(&sb, "\nService: %s", m.Service)
	}
	if m.Message != "" {
		fmt.Fprintf(&sb, "\n\n%s", m.Message)
	}
	return sb.String()
}
