package stats

import (
	"guildstats/internal/models"
)

// EnsureSeriesDays fills the gaps in a sparse per-day series so that every
// calendar day between startDay and endDay (inclusive, UTC) has exactly one
// point, in ascending order. Days without a stored row get a zero-valued
// placeholder. Rows outside the range are ignored.
func EnsureSeriesDays(sparse []models.SeriesPoint, startDay, endDay string) ([]models.SeriesPoint, error) {
	start, err := models.ParseDay(startDay)
	if err != nil {
		return nil, err
	}
	end, err := models.ParseDay(endDay)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]models.SeriesPoint, len(sparse))
	for _, p := range sparse {
		byDay[p.Day] = p
	}

	var out []models.SeriesPoint
	for cursor := start; !cursor.After(end); cursor = cursor.AddDate(0, 0, 1) {
		day := cursor.Format(models.DayLayout)
		if p, ok := byDay[day]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, models.SeriesPoint{Day: day})
	}

	return out, nil
}
