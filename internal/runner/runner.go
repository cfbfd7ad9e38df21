package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/model"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/recurrence"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/store"
)

// Runner processes due scheduled emails on every tick. Sending is simulated:
// an email "goes out" by flipping to sent and leaving an activity record.
// Recurring emails fan out: each firing spawns a fresh sent sibling while the
// original keeps (or loses) its scheduling slot.
type Runner struct {
	store     store.Store
	openDelay time.Duration

	now func() time.Time

	// emailsMu serializes read-modify-writes of the emails collection.
	// The tick loop and the open-tracking goroutines each rewrite the whole
	// list, so an unserialized stale snapshot would drop concurrent updates.
	emailsMu sync.Mutex

	wg        sync.WaitGroup
	quit      chan struct{}
	closeOnce sync.Once
}

func New(s store.Store, openDelay time.Duration) *Runner {
	if openDelay <= 0 {
		openDelay = 5 * time.Second
	}
	return &Runner{
		store:     s,
		openDelay: openDelay,
		now:       time.Now,
		quit:      make(chan struct{}),
	}
}

// WithClock substitutes the runner's notion of now. Tests use this to make
// emails due without sleeping.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Tick selects due scheduled emails and processes each in isolation: one
// email's store failure is logged and skipped, never aborting the rest.
// Processing is sequential, so record rewrites within a tick are ordered.
func (r *Runner) Tick(ctx context.Context) {
	emails, err := store.LoadList[model.ScheduledEmail](ctx, r.store, store.KeyEmails)
	if err != nil {
		slog.Error("runner: loading emails failed", "error", err)
		return
	}

	now := r.now().UTC()
	for _, e := range emails {
		if e.Status != model.EmailScheduled || e.ScheduledAt == nil || e.ScheduledAt.After(now) {
			continue
		}
		if err := r.process(ctx, e.ID, now); err != nil {
			slog.Error("runner: processing email failed", "email", e.ID, "error", err)
		}
	}
}

// Close stops pending open-tracking simulations and waits for in-flight
// ones. A tick already executing is unaffected; callers stop the scheduler
// first.
func (r *Runner) Close() {
	r.closeOnce.Do(func() { close(r.quit) })
	r.wg.Wait()
}

// process re-reads the collection and handles a single email by id. The
// re-read keeps each send attempt an isolated read-modify-write; an email
// already handled (or deleted) since the tick's snapshot is skipped, which
// makes a re-attempt after partial failure safe.
func (r *Runner) process(ctx context.Context, id string, now time.Time) error {
	r.emailsMu.Lock()
	defer r.emailsMu.Unlock()

	emails, err := store.LoadList[model.ScheduledEmail](ctx, r.store, store.KeyEmails)
	if err != nil {
		return err
	}

	idx := -1
	for i, e := range emails {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	email := emails[idx]
	if email.Status != model.EmailScheduled || email.ScheduledAt == nil || email.ScheduledAt.After(now) {
		return nil
	}

	if email.Recurrence != nil && email.Recurrence.Pattern != model.PatternNone {
		return r.fireRecurring(ctx, emails, idx, now)
	}
	return r.fireOnce(ctx, emails, idx, now)
}

func (r *Runner) fireOnce(ctx context.Context, emails []model.ScheduledEmail, idx int, now time.Time) error {
	email := &emails[idx]
	email.Status = model.EmailSent
	email.SentAt = &now

	if err := store.SaveList(ctx, r.store, store.KeyEmails, emails); err != nil {
		return err
	}

	r.recordActivity(ctx, *email, "Scheduled email sent", nil)
	slog.Info("scheduled email sent", "email", email.ID, "recipient", email.Recipient)

	if email.TrackingEnabled {
		r.simulateOpen(email.ID)
	}
	return nil
}

func (r *Runner) fireRecurring(ctx context.Context, emails []model.ScheduledEmail, idx int, now time.Time) error {
	original := emails[idx]
	spec := *original.Recurrence
	count := spec.OccurrenceCount + 1
	firedAt := *original.ScheduledAt

	sibling := original
	sibling.ID = uuid.NewString()
	sibling.Status = model.EmailSent
	sibling.SentAt = &now
	sibling.CreatedAt = now
	sibling.OpenCount = 0
	sibling.OpenedAt = nil
	sibling.Recurrence = &model.RecurrenceSpec{
		Pattern:         spec.Pattern,
		Interval:        spec.Interval,
		OccurrenceCount: count,
		MaxOccurrences:  spec.MaxOccurrences,
		EndDate:         spec.EndDate,
		ParentEmailID:   original.ID,
	}

	if recurrence.ShouldContinue(&spec, count, firedAt) {
		next := recurrence.Next(firedAt, spec.Pattern, spec.Interval)
		orig := &emails[idx]
		orig.ScheduledAt = &next
		orig.Recurrence.OccurrenceCount = count
		orig.Recurrence.NextScheduledAt = &next
	} else {
		// Series exhausted: the sibling survives, the scheduling slot goes.
		emails = append(emails[:idx], emails[idx+1:]...)
	}

	emails = append(emails, sibling)
	if err := store.SaveList(ctx, r.store, store.KeyEmails, emails); err != nil {
		return err
	}

	r.recordActivity(ctx, sibling, "Recurring email sent", map[string]string{
		"occurrence": fmt.Sprintf("%d", count),
		"parent":     original.ID,
	})
	slog.Info("recurring email sent",
		"email", original.ID, "sibling", sibling.ID, "occurrence", count)

	if sibling.TrackingEnabled {
		r.simulateOpen(sibling.ID)
	}
	return nil
}

func (r *Runner) recordActivity(ctx context.Context, email model.ScheduledEmail, subject string, extra map[string]string) {
	meta := map[string]string{
		"emailId":   email.ID,
		"recipient": email.Recipient,
	}
	for k, v := range extra {
		meta[k] = v
	}

	activity := model.Activity{
		ID:        uuid.NewString(),
		Type:      "email-sent",
		ContactID: email.ContactID,
		DealID:    email.DealID,
		Subject:   subject,
		Notes:     email.Subject,
		CreatedBy: "scheduler",
		CreatedAt: r.now().UTC(),
		Metadata:  meta,
	}

	// The trail is best-effort; a logging failure must not fail the send.
	if err := store.Append(ctx, r.store, store.KeyActivities, activity); err != nil {
		slog.Warn("runner: recording activity failed", "email", email.ID, "error", err)
	}
}

// simulateOpen flips a sent email to opened after the configured delay,
// standing in for a real tracking-pixel callback. The rewrite touches only
// the tracked email and runs off the tick goroutine.
func (r *Runner) simulateOpen(id string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case <-time.After(r.openDelay):
		case <-r.quit:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		r.emailsMu.Lock()
		defer r.emailsMu.Unlock()

		emails, err := store.LoadList[model.ScheduledEmail](ctx, r.store, store.KeyEmails)
		if err != nil {
			slog.Warn("open tracking: loading emails failed", "email", id, "error", err)
			return
		}

		for i := range emails {
			if emails[i].ID != id {
				continue
			}
			if emails[i].Status != model.EmailSent && emails[i].Status != model.EmailOpened {
				return
			}

			opened := r.now().UTC()
			emails[i].Status = model.EmailOpened
			if emails[i].OpenedAt == nil {
				emails[i].OpenedAt = &opened
			}
			emails[i].OpenCount++

			if err := store.SaveList(ctx, r.store, store.KeyEmails, emails); err != nil {
				slog.Warn("open tracking: saving failed", "email", id, "error", err)
			}
			return
		}
	}()
}
