package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"physioheal/internal/domain"
	"physioheal/internal/events"
	"physioheal/internal/models"
	"physioheal/internal/worker"

	"github.com/rs/zerolog"
)

const defaultNotifyTimeout = 15 * time.Second

// ContactRelayer forwards a stored contact message by e-mail.
type ContactRelayer interface {
	Relay(ctx context.Context, msg *models.ContactMessage) error
}

// Dispatcher fans submitted forms out to the Sheets queue, staff chats and
// the clinic inbox. Queueing happens inline; notifications run in the background.
type Dispatcher struct {
	worker   domain.SyncWorker
	notifier domain.StaffNotifier
	relay    ContactRelayer
	timeout  time.Duration
	logger   *zerolog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher accepts nil for any collaborator that is not configured.
func NewDispatcher(w domain.SyncWorker, notifier domain.StaffNotifier, relay ContactRelayer, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		worker:   w,
		notifier: notifier,
		relay:    relay,
		timeout:  defaultNotifyTimeout,
		logger:   logger,
	}
}

func (d *Dispatcher) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingSubmitted, d.onBooking)
	bus.Subscribe(events.EventContactSubmitted, d.onContact)
	bus.Subscribe(events.EventBookingStatusChanged, d.onStatusChanged)
}

// Wait blocks until background notifications finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) onBooking(ev *events.Event) error {
	var payload events.BookingEventPayload
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("decode booking event: %w", err)
	}
	booking := payload.Booking()

	if d.notifier != nil {
		d.background(func(ctx context.Context) {
			if err := d.notifier.NotifyBooking(ctx, booking); err != nil {
				d.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("Staff notification failed")
			}
		})
	}

	if d.worker == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.worker.EnqueueBooking(ctx, worker.TaskAppend, booking)
}

// onStatusChanged rewrites the booking's row in place; staff are not pinged.
func (d *Dispatcher) onStatusChanged(ev *events.Event) error {
	var payload events.BookingEventPayload
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("decode booking event: %w", err)
	}
	if d.worker == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.worker.EnqueueBooking(ctx, worker.TaskUpsert, payload.Booking())
}

func (d *Dispatcher) onContact(ev *events.Event) error {
	var payload events.ContactEventPayload
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("decode contact event: %w", err)
	}
	msg := payload.Contact()

	if d.notifier != nil {
		d.background(func(ctx context.Context) {
			if err := d.notifier.NotifyContact(ctx, msg); err != nil {
				d.logger.Warn().Err(err).Int64("contact_id", msg.ID).Msg("Staff notification failed")
			}
		})
	}
	if d.relay != nil {
		d.background(func(ctx context.Context) {
			if err := d.relay.Relay(ctx, msg); err != nil {
				d.logger.Warn().Err(err).Int64("contact_id", msg.ID).Msg("Contact relay failed")
			}
		})
	}

	if d.worker == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.worker.EnqueueContact(ctx, msg)
}

func (d *Dispatcher) background(fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}
