package progress

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed achievements.json
var achievementsJSON []byte

// Achievement is one entry of the static catalog. The catalog carries no
// mutable unlock state; unlock timestamps live in
// [UsageProgress.UnlockedAchievements].
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`

	// Metric names the [UserProgress] value this achievement observes.
	// Known metrics: total_chats, lessons_completed, current_streak,
	// cultural_items, themes_used, features_explored.
	Metric string `json:"metric"`

	// Target is the metric value at which the achievement unlocks.
	Target int `json:"target"`
}

// Catalog returns the static achievement catalog in declaration order.
// The returned slice is shared; callers must not modify it.
func Catalog() []Achievement {
	return catalog
}

var catalog = mustLoadCatalog()

func mustLoadCatalog() []Achievement {
	var list []Achievement
	if err := json.Unmarshal(achievementsJSON, &list); err != nil {
		panic(fmt.Sprintf("progress: embedded achievement catalog is malformed: %v", err))
	}
	seen := make(map[string]struct{}, len(list))
	for _, a := range list {
		if a.ID == "" || a.Target <= 0 {
			panic(fmt.Sprintf("progress: achievement %+v missing id or target", a))
		}
		if _, dup := seen[a.ID]; dup {
			panic(fmt.Sprintf("progress: duplicate achievement id %q", a.ID))
		}
		seen[a.ID] = struct{}{}
	}
	return list
}

// metricValue computes the live value of an achievement metric from p.
// Unknown metrics evaluate to 0, so a catalog typo can never unlock anything.
func metricValue(p *UserProgress, metric string) int {
	switch metric {
	case "total_chats":
		return p.Chat.TotalChats
	case "lessons_completed":
		return len(p.Learning.LessonsCompleted)
	case "current_streak":
		return p.Learning.CurrentStreak
	case "cultural_items":
		return len(p.Cultural.CalendarEventsViewed) + len(p.Cultural.CulturalTopicsExplored)
	case "themes_used":
		return len(p.Customization.ThemesUsed)
	case "features_explored":
		return len(p.Usage.FeaturesExplored)
	default:
		return 0
	}
}
