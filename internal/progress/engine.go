package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hagop-ai/hagopai/internal/observe"
)

// Unlock describes a single achievement unlock event.
type Unlock struct {
	Achievement Achievement
	UnlockedAt  time.Time
}

// UnlockHandler receives achievement unlock notifications. Handlers run
// synchronously on the mutating goroutine; long-running work should be
// dispatched to a separate goroutine by the handler.
type UnlockHandler func(Unlock)

// AchievementStatus pairs a catalog entry with its live unlock state.
type AchievementStatus struct {
	Achievement Achievement `json:"achievement"`
	Unlocked    bool        `json:"unlocked"`
	UnlockedAt  time.Time   `json:"unlocked_at,omitzero"`

	// Current is the live metric value, clamped to Target once unlocked so
	// progress bars never show more than 100%.
	Current int `json:"current"`
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithClock overrides the engine's time source. Used by tests to exercise
// calendar-day logic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMetrics overrides the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine is the progress and achievement engine. It owns the single
// [UserProgress] aggregate: every mutating operation updates the aggregate,
// persists it through the [Store], re-evaluates the achievement catalog, and
// notifies subscribers of any new unlocks.
//
// Engine is safe for concurrent use; mutations serialise on an internal lock
// so interleaved updates never lose counters.
type Engine struct {
	store   Store
	metrics *observe.Metrics
	now     func() time.Time

	mu       sync.Mutex
	progress *UserProgress

	// session accounting
	sessionStart time.Time
	lastFlush    time.Time

	subMu       sync.Mutex
	subscribers []UnlockHandler
}

// ChatActivity describes one chat-layer event for [Engine.RecordChatActivity].
type ChatActivity struct {
	// NewChat marks the start of a new conversation.
	NewChat bool
	// NewMessage marks one user message sent.
	NewMessage bool
	// FavoriteAdded marks a message being favourited.
	FavoriteAdded bool
	// TraditionalGreeting marks the use of a traditional Armenian greeting
	// ("parev", "pari louys", ...) detected in the message.
	TraditionalGreeting bool
}

// New constructs an [Engine] backed by store. Persisted state is loaded
// eagerly; a missing or incompatible blob falls back to a fresh aggregate so
// startup never fails on corrupted data.
func New(ctx context.Context, store Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store: store,
		now:   time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}

	p, err := store.Load(ctx)
	switch {
	case err == nil:
		p.normalize()
		e.progress = p
	case isFreshStartErr(err):
		slog.Info("progress: starting from defaults", "reason", err)
		e.progress = NewUserProgress()
	default:
		return nil, fmt.Errorf("progress: load: %w", err)
	}
	return e, nil
}

func isFreshStartErr(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrIncompatible)
}

// Subscribe registers an [UnlockHandler]. All handlers receive every unlock
// that happens after registration.
func (e *Engine) Subscribe(h UnlockHandler) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subscribers = append(e.subscribers, h)
}

// Snapshot returns a deep copy of the current aggregate.
func (e *Engine) Snapshot() *UserProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress.clone()
}

// Achievements returns the full catalog with live unlock state and metric
// values, in catalog order.
func (e *Engine) Achievements() []AchievementStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]AchievementStatus, 0, len(catalog))
	for _, a := range catalog {
		st := AchievementStatus{
			Achievement: a,
			Current:     metricValue(e.progress, a.Metric),
		}
		if at, ok := e.progress.Usage.UnlockedAchievements[a.ID]; ok {
			st.Unlocked = true
			st.UnlockedAt = at
			st.Current = a.Target
		} else if st.Current > a.Target {
			st.Current = a.Target
		}
		out = append(out, st)
	}
	return out
}

// RecordLessonProgress registers one lesson attempt. Attempts and time
// accumulate on every call; the completion transition (not-completed →
// completed) happens at most once per lesson: it adds the lesson to the
// completed set, and advances the study streak. Score keeps the best result
// across attempts.
func (e *Engine) RecordLessonProgress(ctx context.Context, lessonID string, completed bool, timeSpentMinutes, score int) error {
	if lessonID == "" {
		return fmt.Errorf("progress: lesson id must not be empty")
	}
	return e.mutate(ctx, "lesson", func(p *UserProgress) {
		rec := p.Learning.PerLesson[lessonID]
		rec.Attempts++
		rec.TimeSpentMinutes += timeSpentMinutes
		rec.LastAttempt = e.now()
		if score > rec.Score {
			rec.Score = score
		}

		p.Learning.TotalTimeSpentMinutes += timeSpentMinutes

		if completed && !rec.Completed {
			rec.Completed = true
			addToSet(&p.Learning.LessonsCompleted, lessonID)
			e.advanceStreak(p)
		}
		p.Learning.PerLesson[lessonID] = rec
	})
}

// advanceStreak applies the calendar-day streak rule for a lesson completed
// "now". Same day: no change. Previous day: increment. Any gap (or first
// ever): restart at 1.
func (e *Engine) advanceStreak(p *UserProgress) {
	today := dateOf(e.now())
	switch {
	case p.Learning.LastStudyDate == today:
		// Already counted today.
	default:
		if diff, ok := dayDiff(p.Learning.LastStudyDate, today); ok && diff == 1 {
			p.Learning.CurrentStreak++
		} else {
			p.Learning.CurrentStreak = 1
		}
		p.Learning.LastStudyDate = today
	}
	if p.Learning.CurrentStreak > p.Learning.LongestStreak {
		p.Learning.LongestStreak = p.Learning.CurrentStreak
	}
}

// RecordChatActivity registers chat-layer counters.
func (e *Engine) RecordChatActivity(ctx context.Context, a ChatActivity) error {
	return e.mutate(ctx, "chat", func(p *UserProgress) {
		if a.NewChat {
			p.Chat.TotalChats++
		}
		if a.NewMessage {
			p.Chat.TotalMessages++
		}
		if a.FavoriteAdded {
			p.Chat.FavoriteMessages++
		}
		if a.TraditionalGreeting {
			p.Chat.TraditionalGreetingsUsed++
		}
	})
}

// RecordCulturalView registers a cultural calendar event view and/or a
// cultural topic exploration. Empty arguments are skipped; set semantics
// guarantee no duplicates.
func (e *Engine) RecordCulturalView(ctx context.Context, eventID, topic string) error {
	return e.mutate(ctx, "cultural", func(p *UserProgress) {
		if eventID != "" {
			addToSet(&p.Cultural.CalendarEventsViewed, eventID)
		}
		if topic != "" {
			addToSet(&p.Cultural.CulturalTopicsExplored, topic)
			p.Usage.MostUsedTopics[topic]++
		}
	})
}

// RecordCustomization registers a theme change and/or an accessibility
// feature use. Empty arguments are skipped.
func (e *Engine) RecordCustomization(ctx context.Context, theme, accessibilityFeature string) error {
	return e.mutate(ctx, "customization", func(p *UserProgress) {
		changed := false
		if theme != "" {
			p.Customization.PreferredTheme = theme
			addToSet(&p.Customization.ThemesUsed, theme)
			changed = true
		}
		if accessibilityFeature != "" {
			addToSet(&p.Customization.AccessibilityFeaturesUsed, accessibilityFeature)
			changed = true
		}
		if changed {
			p.Customization.CustomizationsApplied++
		}
	})
}

// RecordFeatureUsage registers one explored feature (set semantics).
func (e *Engine) RecordFeatureUsage(ctx context.Context, feature string) error {
	if feature == "" {
		return fmt.Errorf("progress: feature name must not be empty")
	}
	return e.mutate(ctx, "feature", func(p *UserProgress) {
		addToSet(&p.Usage.FeaturesExplored, feature)
	})
}

// RecordPhraseLearned increments the Armenian-phrases counter. Called by the
// voice layer when a corrected final transcript contains lexicon vocabulary.
func (e *Engine) RecordPhraseLearned(ctx context.Context) error {
	return e.mutate(ctx, "phrase", func(p *UserProgress) {
		p.Learning.ArmenianPhrasesLearned++
	})
}

// StartSession stamps the session start, bumps the active-day counter when
// the calendar day changed, and increments the session count.
func (e *Engine) StartSession(ctx context.Context) error {
	return e.mutate(ctx, "session_start", func(p *UserProgress) {
		now := e.now()
		e.sessionStart = now
		e.lastFlush = now

		today := dateOf(now)
		if p.Usage.FirstLoginDate == "" {
			p.Usage.FirstLoginDate = today
		}
		if p.Usage.LastActiveDate != today {
			p.Usage.ActiveDays++
			p.Usage.LastActiveDate = today
		}
		p.Usage.SessionCount++
	})
}

// FlushSession folds the elapsed whole minutes since the last flush into the
// total session time. Sub-minute remainders carry over to the next flush, so
// a crash loses at most one flush interval.
func (e *Engine) FlushSession(ctx context.Context) error {
	return e.mutate(ctx, "session_flush", func(p *UserProgress) {
		e.flushLocked(p)
	})
}

// EndSession flushes the remaining session time and clears the session stamp.
func (e *Engine) EndSession(ctx context.Context) error {
	return e.mutate(ctx, "session_end", func(p *UserProgress) {
		e.flushLocked(p)
		e.sessionStart = time.Time{}
		e.lastFlush = time.Time{}
	})
}

func (e *Engine) flushLocked(p *UserProgress) {
	if e.lastFlush.IsZero() {
		return
	}
	minutes := int(e.now().Sub(e.lastFlush).Minutes())
	if minutes <= 0 {
		return
	}
	p.Usage.TotalSessionTimeMinutes += minutes
	e.lastFlush = e.lastFlush.Add(time.Duration(minutes) * time.Minute)
}

// ResetLearning reinitialises the learning section only. Unlocked
// achievements are kept (monotonic unlock survives a learning reset).
func (e *Engine) ResetLearning(ctx context.Context) error {
	return e.mutate(ctx, "reset_learning", func(p *UserProgress) {
		p.Learning = LearningProgress{
			LessonsCompleted: []string{},
			PerLesson:        map[string]LessonRecord{},
		}
	})
}

// ResetAll reinitialises the whole aggregate, including the unlocked
// achievement set: after a full reset the catalog is locked again.
func (e *Engine) ResetAll(ctx context.Context) error {
	return e.mutate(ctx, "reset_all", func(p *UserProgress) {
		*p = *NewUserProgress()
	})
}

// mutate serialises one read-modify-write cycle: apply fn, re-evaluate the
// achievement catalog, persist, then notify. Unlock notifications fire after
// the lock is released so handlers may call back into the engine.
func (e *Engine) mutate(ctx context.Context, kind string, fn func(p *UserProgress)) error {
	e.mu.Lock()
	fn(e.progress)
	unlocks := e.evaluateLocked()
	saveErr := e.store.Save(ctx, e.progress)
	e.mu.Unlock()

	e.metrics.RecordProgressUpdate(ctx, kind)
	for _, u := range unlocks {
		slog.Info("achievement unlocked",
			"id", u.Achievement.ID,
			"title", u.Achievement.Title)
		e.metrics.RecordAchievementUnlock(ctx, u.Achievement.ID)
		e.notify(u)
	}

	if saveErr != nil {
		// In-memory state stays applied; the next successful save persists it.
		return fmt.Errorf("progress: save: %w", saveErr)
	}
	return nil
}

// evaluateLocked checks every still-locked catalog entry against the live
// aggregate and unlocks those whose metric reached the target. Idempotent:
// already-unlocked entries are skipped, so re-evaluation never re-fires.
// Must be called with e.mu held.
func (e *Engine) evaluateLocked() []Unlock {
	var unlocks []Unlock
	now := e.now()
	for _, a := range catalog {
		if _, done := e.progress.Usage.UnlockedAchievements[a.ID]; done {
			continue
		}
		if metricValue(e.progress, a.Metric) >= a.Target {
			e.progress.Usage.UnlockedAchievements[a.ID] = now
			unlocks = append(unlocks, Unlock{Achievement: a, UnlockedAt: now})
		}
	}
	return unlocks
}

func (e *Engine) notify(u Unlock) {
	e.subMu.Lock()
	subs := make([]UnlockHandler, len(e.subscribers))
	copy(subs, e.subscribers)
	e.subMu.Unlock()

	for _, h := range subs {
		h(u)
	}
}
