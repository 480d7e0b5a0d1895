package ndvi

import (
	"sort"
	"time"
)

// Window returns the trailing calendar dates of the window ending today
// inclusive, oldest first, normalized to midnight UTC. Time-of-day on today
// is ignored.
func Window(today time.Time, days int) []time.Time {
	end := midnightUTC(today)
	dates := make([]time.Time, 0, days)
	for i := days - 1; i >= 0; i-- {
		dates = append(dates, end.AddDate(0, 0, -i))
	}
	return dates
}

// Interpolate fills every date of the window from the raw observations.
// An exact raw hit is used as-is; a missing date is linearly interpolated
// between its nearest known neighbors by elapsed-day ratio, or flat-filled
// when only one side has data. With zero raw points the result is the empty
// series. Otherwise the output has exactly len(window) points, ascending,
// marked interpolated unless they were exact hits.
func Interpolate(window []time.Time, raw []RawPoint) []TimeseriesPoint {
	known := dedupe(window, raw)
	if len(known) == 0 {
		return nil
	}

	out := make([]TimeseriesPoint, 0, len(window))
	for _, date := range window {
		if p, ok := exact(known, date); ok {
			out = append(out, TimeseriesPoint{Date: date, Mean: p.Mean})
			continue
		}

		before, hasBefore := nearestBefore(known, date)
		after, hasAfter := nearestAfter(known, date)

		var mean float64
		switch {
		case hasBefore && hasAfter:
			span := after.Date.Sub(before.Date)
			elapsed := date.Sub(before.Date)
			ratio := float64(elapsed) / float64(span)
			mean = before.Mean + (after.Mean-before.Mean)*ratio
		case hasBefore:
			mean = before.Mean
		default:
			mean = after.Mean
		}

		out = append(out, TimeseriesPoint{Date: date, Mean: mean, Interpolated: true})
	}
	return out
}

// Change returns last minus first mean over the series, but only when the
// series covers the full expected window; a delta over sparse data would
// compare dates that are not actually the window apart.
func Change(series []TimeseriesPoint, windowDays int) (float64, bool) {
	if len(series) == 0 || len(series) != windowDays {
		return 0, false
	}
	return series[len(series)-1].Mean - series[0].Mean, true
}

// dedupe normalizes raw points to midnight UTC, keeps only dates inside the
// window, collapses duplicates (last wins), and returns them sorted.
func dedupe(window []time.Time, raw []RawPoint) []RawPoint {
	if len(window) == 0 {
		return nil
	}
	first, last := window[0], window[len(window)-1]

	byDate := make(map[time.Time]float64, len(raw))
	for _, p := range raw {
		d := midnightUTC(p.Date)
		if d.Before(first) || d.After(last) {
			continue
		}
		byDate[d] = p.Mean
	}

	out := make([]RawPoint, 0, len(byDate))
	for d, mean := range byDate {
		out = append(out, RawPoint{Date: d, Mean: mean})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func exact(known []RawPoint, date time.Time) (RawPoint, bool) {
	for _, p := range known {
		if p.Date.Equal(date) {
			return p, true
		}
	}
	return RawPoint{}, false
}

func nearestBefore(known []RawPoint, date time.Time) (RawPoint, bool) {
	for i := len(known) - 1; i >= 0; i-- {
		if known[i].Date.Before(date) {
			return known[i], true
		}
	}
	return RawPoint{}, false
}

func nearestAfter(known []RawPoint, date time.Time) (RawPoint, bool) {
	for _, p := range known {
		if p.Date.After(date) {
			return p, true
		}
	}
	return RawPoint{}, false
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
