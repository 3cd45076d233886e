package stats

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"guildstats/internal/models"
)

// DefaultPeriodDays is used when no period is supplied or it does not parse.
const DefaultPeriodDays = 30

var periodPattern = regexp.MustCompile(`^(\d+)\s*d$`)

// PeriodQuery is a user-supplied period specifier: either a preset period
// ("7d", "all", ...) or an explicit From/To day pair.
type PeriodQuery struct {
	Period string
	From   string
	To     string
}

// ResolveRange maps a period specifier to a concrete inclusive day range.
// "Today" is the UTC calendar day of now.
//
// An explicit From/To pair is used verbatim. "all" spans from the epoch
// sentinel to today. "Nd" spans the last N days including today. Anything
// else falls back to the default period.
func ResolveRange(q PeriodQuery, now time.Time) models.Range {
	today := models.UTCDay(now)

	if q.From != "" && q.To != "" {
		return models.Range{
			Start: q.From,
			End:   q.To,
			Label: fmt.Sprintf("%s → %s", q.From, q.To),
		}
	}

	period := strings.ToLower(strings.TrimSpace(q.Period))
	if period == "" {
		period = fmt.Sprintf("%dd", DefaultPeriodDays)
	}

	if period == "all" {
		return models.Range{Start: models.EpochDay, End: today, Label: "All time"}
	}

	days := DefaultPeriodDays
	if m := periodPattern.FindStringSubmatch(period); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			days = n
		}
	}

	start := models.UTCDay(now.UTC().AddDate(0, 0, -(days - 1)))
	return models.Range{
		Start: start,
		End:   today,
		Label: fmt.Sprintf("Last %d days", days),
	}
}
