package detect

import (
	"sort"
	"time"

	"github.com/railsense/railsense/internal/model"
)

// Consolidate turns per-timestamp out-of-range sensor counts into anomaly
// events. A timestamp is anomalous when strictly more than quorum sensors
// are out of range at once. Consecutive anomalous timestamps, and runs
// separated by at most mergeGap, collapse into one event. Every event's
// duration includes the final step.
func Consolidate(votes map[time.Time]int, quorum int, step, mergeGap time.Duration) []model.AnomalyEvent {
	stamps := make([]time.Time, 0, len(votes))
	for ts, count := range votes {
		if count > quorum {
			stamps = append(stamps, ts)
		}
	}
	if len(stamps) == 0 {
		return nil
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	var events []model.AnomalyEvent
	start := stamps[0]
	end := stamps[0]
	peak := votes[stamps[0]]
	flush := func() {
		events = append(events, model.AnomalyEvent{
			StartTs:      start,
			EndTs:        end.Add(step),
			DurationSecs: int64(end.Add(step).Sub(start).Seconds()),
			PeakSensors:  peak,
		})
	}
	for _, ts := range stamps[1:] {
		if ts.Sub(end) <= mergeGap+step {
			end = ts
			if votes[ts] > peak {
				peak = votes[ts]
			}
			continue
		}
		flush()
		start, end, peak = ts, ts, votes[ts]
	}
	flush()
	return events
}
