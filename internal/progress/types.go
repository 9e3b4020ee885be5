// Package progress implements the persisted progress and achievement engine.
//
// A single [UserProgress] aggregate holds durable counters of user activity
// across five areas (learning, chat, cultural, customization, usage). Every
// mutating operation on the [Engine] persists the aggregate through a
// [Store] and re-evaluates the static achievement catalog; threshold
// crossings fire exactly one unlock notification per achievement.
//
// All date-based logic (study streaks, active days) operates on local
// calendar days, not elapsed hours: studying at 23:59 and again at 00:01
// counts as two consecutive days.
package progress

import (
	"slices"
	"time"
)

// dateLayout is the serialised form of calendar-date fields.
const dateLayout = "2006-01-02"

// LessonRecord tracks per-lesson detail inside [LearningProgress].
type LessonRecord struct {
	Completed        bool      `json:"completed"`
	TimeSpentMinutes int       `json:"time_spent_minutes"`
	Score            int       `json:"score"`
	Attempts         int       `json:"attempts"`
	LastAttempt      time.Time `json:"last_attempt"`
}

// LearningProgress holds lesson and streak counters.
type LearningProgress struct {
	// LessonsCompleted is the set of completed lesson IDs. Guaranteed
	// duplicate-free; its size equals the number of PerLesson entries with
	// Completed set.
	LessonsCompleted []string `json:"lessons_completed"`

	TotalTimeSpentMinutes int `json:"total_time_spent_minutes"`

	// CurrentStreak counts consecutive local calendar days with at least one
	// completed lesson. Never exceeds LongestStreak after an update.
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`

	// LastStudyDate is the local calendar date ("2006-01-02") of the most
	// recent completed lesson. Empty until the first completion.
	LastStudyDate string `json:"last_study_date"`

	ArmenianPhrasesLearned int `json:"armenian_phrases_learned"`

	PerLesson map[string]LessonRecord `json:"per_lesson"`
}

// ChatProgress holds conversation counters.
type ChatProgress struct {
	TotalChats               int `json:"total_chats"`
	TotalMessages            int `json:"total_messages"`
	FavoriteMessages         int `json:"favorite_messages"`
	TraditionalGreetingsUsed int `json:"traditional_greetings_used"`
}

// CulturalProgress holds cultural-content exploration sets.
type CulturalProgress struct {
	CalendarEventsViewed   []string `json:"calendar_events_viewed"`
	CulturalTopicsExplored []string `json:"cultural_topics_explored"`
}

// CustomizationProgress holds personalisation counters.
type CustomizationProgress struct {
	ThemesUsed                []string `json:"themes_used"`
	PreferredTheme            string   `json:"preferred_theme"`
	CustomizationsApplied     int      `json:"customizations_applied"`
	AccessibilityFeaturesUsed []string `json:"accessibility_features_used"`
}

// UsageProgress holds app-wide usage counters and the achievement unlock set.
type UsageProgress struct {
	TotalSessionTimeMinutes int      `json:"total_session_time_minutes"`
	SessionCount            int      `json:"session_count"`
	ActiveDays              int      `json:"active_days"`
	FeaturesExplored        []string `json:"features_explored"`

	// FirstLoginDate and LastActiveDate are local calendar dates
	// ("2006-01-02"). FirstLoginDate is set once and never changes.
	FirstLoginDate string `json:"first_login_date"`
	LastActiveDate string `json:"last_active_date"`

	// MostUsedTopics maps cultural topic → view count.
	MostUsedTopics map[string]int `json:"most_used_topics"`

	// UnlockedAchievements maps achievement ID → unlock timestamp. Once an
	// ID is present it is never removed except by a full reset.
	UnlockedAchievements map[string]time.Time `json:"unlocked_achievements"`
}

// UserProgress is the persisted aggregate, one instance per user.
type UserProgress struct {
	Learning      LearningProgress      `json:"learning"`
	Chat          ChatProgress          `json:"chat"`
	Cultural      CulturalProgress      `json:"cultural"`
	Customization CustomizationProgress `json:"customization"`
	Usage         UsageProgress         `json:"usage"`
}

// NewUserProgress returns an aggregate with zero counters and initialised
// maps, ready for first use.
func NewUserProgress() *UserProgress {
	return &UserProgress{
		Learning: LearningProgress{
			LessonsCompleted: []string{},
			PerLesson:        map[string]LessonRecord{},
		},
		Cultural: CulturalProgress{
			CalendarEventsViewed:   []string{},
			CulturalTopicsExplored: []string{},
		},
		Customization: CustomizationProgress{
			ThemesUsed:                []string{},
			AccessibilityFeaturesUsed: []string{},
		},
		Usage: UsageProgress{
			FeaturesExplored:     []string{},
			MostUsedTopics:       map[string]int{},
			UnlockedAchievements: map[string]time.Time{},
		},
	}
}

// normalize re-initialises any nil map or slice fields. Persisted blobs
// written by older builds may omit fields entirely; normalising on load keeps
// the rest of the engine free of nil checks.
func (p *UserProgress) normalize() {
	if p.Learning.LessonsCompleted == nil {
		p.Learning.LessonsCompleted = []string{}
	}
	if p.Learning.PerLesson == nil {
		p.Learning.PerLesson = map[string]LessonRecord{}
	}
	if p.Cultural.CalendarEventsViewed == nil {
		p.Cultural.CalendarEventsViewed = []string{}
	}
	if p.Cultural.CulturalTopicsExplored == nil {
		p.Cultural.CulturalTopicsExplored = []string{}
	}
	if p.Customization.ThemesUsed == nil {
		p.Customization.ThemesUsed = []string{}
	}
	if p.Customization.AccessibilityFeaturesUsed == nil {
		p.Customization.AccessibilityFeaturesUsed = []string{}
	}
	if p.Usage.FeaturesExplored == nil {
		p.Usage.FeaturesExplored = []string{}
	}
	if p.Usage.MostUsedTopics == nil {
		p.Usage.MostUsedTopics = map[string]int{}
	}
	if p.Usage.UnlockedAchievements == nil {
		p.Usage.UnlockedAchievements = map[string]time.Time{}
	}
}

// clone returns a deep copy safe to hand out while the engine keeps mutating
// its own instance.
func (p *UserProgress) clone() *UserProgress {
	c := *p

	c.Learning.LessonsCompleted = slices.Clone(p.Learning.LessonsCompleted)
	c.Learning.PerLesson = make(map[string]LessonRecord, len(p.Learning.PerLesson))
	for k, v := range p.Learning.PerLesson {
		c.Learning.PerLesson[k] = v
	}

	c.Cultural.CalendarEventsViewed = slices.Clone(p.Cultural.CalendarEventsViewed)
	c.Cultural.CulturalTopicsExplored = slices.Clone(p.Cultural.CulturalTopicsExplored)

	c.Customization.ThemesUsed = slices.Clone(p.Customization.ThemesUsed)
	c.Customization.AccessibilityFeaturesUsed = slices.Clone(p.Customization.AccessibilityFeaturesUsed)

	c.Usage.FeaturesExplored = slices.Clone(p.Usage.FeaturesExplored)
	c.Usage.MostUsedTopics = make(map[string]int, len(p.Usage.MostUsedTopics))
	for k, v := range p.Usage.MostUsedTopics {
		c.Usage.MostUsedTopics[k] = v
	}
	c.Usage.UnlockedAchievements = make(map[string]time.Time, len(p.Usage.UnlockedAchievements))
	for k, v := range p.Usage.UnlockedAchievements {
		c.Usage.UnlockedAchievements[k] = v
	}

	return &c
}

// AverageSessionLengthMinutes derives the mean session length. Returns 0
// before the first completed session.
func (p *UserProgress) AverageSessionLengthMinutes() float64 {
	if p.Usage.SessionCount == 0 {
		return 0
	}
	return float64(p.Usage.TotalSessionTimeMinutes) / float64(p.Usage.SessionCount)
}

// addToSet appends v to set if absent and reports whether it was added.
func addToSet(set *[]string, v string) bool {
	if slices.Contains(*set, v) {
		return false
	}
	*set = append(*set, v)
	return true
}

// dateOf formats t as a local calendar date.
func dateOf(t time.Time) string {
	return t.Local().Format(dateLayout)
}

// dayDiff returns the number of calendar days from date a to date b (both in
// dateLayout form). Returns 0 and false when either date fails to parse.
func dayDiff(a, b string) (int, bool) {
	ta, errA := time.Parse(dateLayout, a)
	tb, errB := time.Parse(dateLayout, b)
	if errA != nil || errB != nil {
		return 0, false
	}
	return int(tb.Sub(ta).Hours() / 24), true
}
