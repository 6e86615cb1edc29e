package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"slotbook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender is the part of the Telegram client the forwarder uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramForwarder relays booking events to manager chats.
type TelegramForwarder struct {
	sender  Sender
	chatIDs []int64
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

type Option func(*TelegramForwarder)

// WithRate caps outgoing messages per second across all chats.
func WithRate(perSecond float64, burst int) Option {
	return func(f *TelegramForwarder) {
		if perSecond > 0 && burst > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(f *TelegramForwarder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewTelegramForwarder connects to the Bot API with token.
func NewTelegramForwarder(token string, debug bool, chatIDs []int64, opts ...Option) (*TelegramForwarder, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = debug
	return NewForwarder(bot, chatIDs, opts...), nil
}

// NewForwarder builds a forwarder over any sender.
func NewForwarder(sender Sender, chatIDs []int64, opts ...Option) *TelegramForwarder {
	nop := zerolog.New(io.Discard)
	f := &TelegramForwarder{
		sender:  sender,
		chatIDs: chatIDs,
		limiter: rate.NewLimiter(rate.Limit(20), 30),
		logger:  &nop,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run forwards booking events from bus until ctx is done or the bus closes.
func (f *TelegramForwarder) Run(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.ForKind(events.KindBooking))
	defer sub.Close()

	f.logger.Info().Int("chats", len(f.chatIDs)).Msg("Telegram forwarder started")
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			f.Forward(ctx, e)
		}
	}
}

// Forward sends one event to every configured chat. Failures are logged.
func (f *TelegramForwarder) Forward(ctx context.Context, e events.Event) {
	text := FormatEvent(e)
	if text == "" {
		return
	}
	for _, chatID := range f.chatIDs {
		if err := f.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := f.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			f.logger.Error().Err(err).Int64("chat_id", chatID).Uint64("seq", e.Seq).Msg("Failed to send telegram notification")
		}
	}
}

// FormatEvent renders a booking event as a plain-text message.
func FormatEvent(e events.Event) string {
	b := e.Booking
	if b == nil {
		return ""
	}

	var title string
	switch e.Operation {
	case events.OpCreated:
		title = "New booking"
	case events.OpUpdated:
		title = "Booking updated"
	case events.OpDeleted:
		title = "Booking deleted"
	default:
		title = "Booking " + string(e.Operation)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", title, b.BookingID)
	fmt.Fprintf(&sb, "%s %s, %s, %s\n", b.Booker.FirstName, b.Booker.LastName, b.Booker.Phone, b.Booker.Email)
	if b.SlotID != nil {
		fmt.Fprintf(&sb, "Slot: %d\n", *b.SlotID)
	} else {
		sb.WriteString("Slot: none\n")
	}
	fmt.Fprintf(&sb, "Status: %s", b.Status)
	return sb.String()
}
