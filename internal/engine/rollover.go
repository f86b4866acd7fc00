package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"slidetasks/internal/bus"
	"slidetasks/internal/store"
)

const dayLayout = "2006-01-02"

// RolloverIfNewDay freezes the prior day's completion stats into the daily
// log on the first call after local midnight, then lets the today counter
// restart from zero. Idempotent: repeated calls on the same day do nothing,
// and an existing row for a date is never overwritten.
func (e *Engine) RolloverIfNewDay(now time.Time) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	day := now.Format(dayLayout)
	if day <= e.lastDay {
		return false, nil
	}

	prior := e.lastDay
	priorDate, err := time.ParseInLocation(dayLayout, prior, now.Location())
	if err != nil {
		return false, fmt.Errorf("engine: bad rollover watermark %q: %w", prior, err)
	}

	total, done, err := e.st.TodayStats(e.activeList, priorDate)
	if err != nil {
		return false, fmt.Errorf("engine: computing stats for %s: %w", prior, err)
	}

	e.lastDay = day
	if total == 0 {
		return true, nil
	}

	rate := float64(done) / float64(total) * 100
	inserted, err := e.st.AppendDailyLog(store.DailyLog{
		Date:            prior,
		TotalCount:      total,
		DoneCount:       done,
		AchievementRate: rate,
	})
	if err != nil {
		return false, err
	}
	if inserted {
		e.log.Info("daily rollover", "date", prior, "total", total, "done", done)
		e.bus.Publish(bus.TopicRollover, bus.RolloverEvent{Date: prior, DoneCount: done})
	}
	return true, nil
}

// History returns per-day completion counts for [from, to] from the daily
// log, newest first. When online, days missing locally are filled from the
// remote completion history.
func (e *Engine) History(ctx context.Context, from, to time.Time) ([]store.DailyLog, error) {
	logs, err := e.st.DailyLogsInRange(from.Format(dayLayout), to.Format(dayLayout))
	if err != nil {
		return nil, err
	}

	if e.gw == nil || e.State() == StateOffline || e.State() == StateReauthRequired {
		return logs, nil
	}

	e.mu.Lock()
	listID := e.activeList
	e.mu.Unlock()

	completions, err := e.gw.FetchHistory(ctx, listID, from, to.Add(24*time.Hour))
	if err != nil {
		// History stays usable offline; remote reconciliation is best effort.
		e.log.Debug("remote history unavailable", "err", err)
		return logs, nil
	}

	have := make(map[string]bool, len(logs))
	for _, l := range logs {
		have[l.Date] = true
	}

	remoteCounts := make(map[string]int)
	for _, c := range completions {
		day := c.CompletedAt.Local().Format(dayLayout)
		remoteCounts[day]++
	}
	for day, count := range remoteCounts {
		if have[day] {
			continue
		}
		logs = append(logs, store.DailyLog{
			Date:            day,
			TotalCount:      count,
			DoneCount:       count,
			AchievementRate: 100,
		})
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].Date > logs[j].Date })
	return logs, nil
}
