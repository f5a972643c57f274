package migrate

import (
	"cmp"
	"slices"
	"time"
)

// buildSummary assembles the run outcome. planned is the number of entries
// after filtering; entries never started are counted as pending.
func buildSummary(
	runID string, state RunState, dryRun bool, started, finished time.Time, planned int, records []TransferRecord,
) *RunSummary {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b TransferRecord) int {
		return cmp.Compare(a.Path, b.Path)
	})

	s := &RunSummary{
		RunID:      runID,
		State:      state,
		DryRun:     dryRun,
		StartedAt:  started,
		FinishedAt: finished,
		Counts:     make(map[TransferStatus]int),
		Records:    sorted,
	}

	for i := range sorted {
		rec := &sorted[i]
		s.Counts[rec.Status]++

		switch rec.Status {
		case StatusSucceeded:
			s.Bytes += rec.Bytes
		case StatusFailed:
			s.Failed = append(s.Failed, FailedPath{Path: rec.Path, Reason: rec.LastError})
		}
	}

	if pending := planned - len(sorted); pending > 0 {
		s.Counts[StatusPending] = pending
	}

	return s
}

// Total is the number of files the run planned to migrate.
func (s *RunSummary) Total() int {
	var n int
	for _, c := range s.Counts {
		n += c
	}

	return n
}

// Duration is the wall-clock length of the run.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
