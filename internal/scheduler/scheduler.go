package scheduler

import (
	"context"
	"sync"
	"time"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/metrics"
	"example.com/snackhouse/delivery/internal/models"
	"example.com/snackhouse/delivery/internal/notifier"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DeliveryStore is the minimum persistence contract the scheduler needs.
type DeliveryStore interface {
	ListScheduled(ctx context.Context) ([]models.Delivery, error)
	MarkFlagged(ctx context.Context, id uint) error
}

// Scheduler owns the in-memory mapping from delivery id to a pending
// reminder. The map is process-local and rebuilt from persisted delivery
// rows on startup; a reminder fires at delivery time minus its lead
// time, delivers one announcement, and removes its own entry whatever
// the outcome.
type Scheduler struct {
	cfg       config.SchedulerConfig
	store     DeliveryStore
	announcer notifier.Announcer
	metrics   *metrics.Metrics

	mu      sync.Mutex
	pending map[uint]*reminder
	stopped bool

	now func() time.Time
}

// reminder wraps the timer for one map entry. fire holds the entry
// pointer so its cleanup only removes itself; a replacement registered
// while the old timer is mid-fire keeps its own entry.
type reminder struct {
	timer *time.Timer
}

// New creates a reminder scheduler.
func New(cfg config.SchedulerConfig, store DeliveryStore, announcer notifier.Announcer, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		announcer: announcer,
		metrics:   m,
		pending:   make(map[uint]*reminder),
		now:       time.Now,
	}
}

// Schedule registers a deferred reminder for the delivery and reports
// whether an entry was created. A delivery whose alert time has already
// passed gets no entry; the reconciliation sweep picks it up if it goes
// stale.
func (s *Scheduler) Schedule(delivery models.Delivery) bool {
	at, err := delivery.ScheduledAt()
	if err != nil {
		log.Error().Err(err).Uint("delivery_id", delivery.ID).Msg("Cannot schedule reminder")
		return false
	}

	alertTime := at.Add(-time.Duration(delivery.LeadTimeMinutes) * time.Minute)
	delay := alertTime.Sub(s.now())
	if delay <= 0 {
		log.Info().
			Uint("delivery_id", delivery.ID).
			Time("alert_time", alertTime).
			Msg("Alert time already passed, skipping reminder")
		s.metrics.IncrementCounter(metrics.RemindersSkipped)
		return false
	}

	leadMinutes := delivery.LeadTimeMinutes
	description := delivery.Description
	id := delivery.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	// One entry per delivery: replace any leftover timer so a reschedule
	// after a missed Cancel cannot double-fire.
	if old, ok := s.pending[id]; ok {
		old.timer.Stop()
	}

	entry := &reminder{}
	entry.timer = time.AfterFunc(delay, func() {
		s.fire(entry, id, leadMinutes, description)
	})
	s.pending[id] = entry

	log.Info().
		Uint("delivery_id", id).
		Dur("fires_in", delay).
		Msg("Reminder scheduled")
	s.metrics.IncrementCounter(metrics.RemindersScheduled)
	s.updatePendingGauge()

	return true
}

// fire delivers the announcement for one delivery. The entry is
// removed on every outcome; a failed send is fire-once, drop. Only the
// firing entry itself is removed, never a replacement under the same id.
func (s *Scheduler) fire(entry *reminder, id uint, leadMinutes int, description string) {
	defer func() {
		s.mu.Lock()
		if cur, ok := s.pending[id]; ok && cur == entry {
			delete(s.pending, id)
			s.updatePendingGauge()
		}
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	text := notifier.ReminderText(leadMinutes, description)
	if err := s.announcer.Announce(ctx, text); err != nil {
		log.Error().Err(err).Uint("delivery_id", id).Msg("Failed to send reminder")
		s.metrics.IncrementCounter(metrics.RemindersFailed)
		s.metrics.RecordError("reminder_send")
		return
	}

	log.Info().Uint("delivery_id", id).Msg("Reminder sent")
	s.metrics.IncrementCounter(metrics.RemindersFired)
	s.metrics.RecordSuccess("reminder_send")
}

// Cancel revokes the pending reminder for the delivery, if any. Safe to
// call for ids with no entry.
func (s *Scheduler) Cancel(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[id]
	if !ok {
		return
	}

	entry.timer.Stop()
	delete(s.pending, id)
	s.updatePendingGauge()

	log.Info().Uint("delivery_id", id).Msg("Reminder cancelled")
	s.metrics.IncrementCounter(metrics.RemindersCancelled)
}

// RescheduleAllPending rebuilds the reminder map from persisted rows.
// Run once at process start; timers do not survive a restart.
func (s *Scheduler) RescheduleAllPending(ctx context.Context) error {
	deliveries, err := s.store.ListScheduled(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list scheduled deliveries")
	}

	count := 0
	now := s.now()
	for _, delivery := range deliveries {
		at, err := delivery.ScheduledAt()
		if err != nil {
			log.Error().Err(err).Uint("delivery_id", delivery.ID).Msg("Skipping delivery with invalid date")
			continue
		}
		if at.After(now) && s.Schedule(delivery) {
			count++
		}
	}

	log.Info().Int("count", count).Msg("Pending reminders rescheduled")
	return nil
}

// Reconcile flags every delivery still "scheduled" whose delivery time
// plus the grace window has elapsed, and drops any lingering reminder
// entry for it. Run once at start and then on every sweep interval.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	deliveries, err := s.store.ListScheduled(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list scheduled deliveries")
	}

	now := s.now()
	for _, delivery := range deliveries {
		at, err := delivery.ScheduledAt()
		if err != nil {
			log.Error().Err(err).Uint("delivery_id", delivery.ID).Msg("Skipping delivery with invalid date")
			continue
		}

		if at.Add(s.cfg.GraceWindow).After(now) {
			continue
		}

		log.Warn().
			Uint("delivery_id", delivery.ID).
			Time("scheduled_at", at).
			Msg("Delivery overdue past grace window, flagging")

		if err := s.store.MarkFlagged(ctx, delivery.ID); err != nil {
			log.Error().Err(err).Uint("delivery_id", delivery.ID).Msg("Failed to flag delivery")
			continue
		}

		s.Cancel(delivery.ID)
		s.metrics.IncrementCounter(metrics.DeliveriesFlagged)
	}

	return nil
}

// Stop cancels every pending reminder and refuses further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, id)
	}
	s.updatePendingGauge()

	log.Info().Msg("Reminder scheduler stopped")
}

// PendingCount returns the number of reminders currently registered.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// HasPending reports whether the delivery has a registered reminder.
func (s *Scheduler) HasPending(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// updatePendingGauge must be called with the mutex held.
func (s *Scheduler) updatePendingGauge() {
	s.metrics.SetGauge("reminders_pending", int64(len(s.pending)))
}
