package cleanup

import (
	"errors"
	"slices"

	"github.com/dotcommander/refresher/internal/diag"
	"github.com/dotcommander/refresher/internal/models"
)

// ApplyDeletions deletes every entry of plan in strictly descending order of
// its scan-time position. Each item's outcome is collected into the report;
// no per-item error or panic escapes and one failure never stops the rest.
//
// An empty plan is a no-op. A provider holding zero resources is not touched:
// the report sets ProviderEmpty and every planned item is reported not_found.
// FinalCount is -1 when the provider's count cannot be read afterwards.
func ApplyDeletions(provider ResourceProvider, plan models.DeletionPlan, opts ...Option) models.Report {
	o := buildOptions(opts)
	report := models.Report{Unreadable: len(plan.Unreadable)}
	entries := descendingUnique(plan.Entries)

	if len(entries) == 0 {
		report.FinalCount = finalCount(provider)
		return report
	}

	if n, err := safeCount(provider); err == nil && n == 0 {
		report.ProviderEmpty = true
		for _, h := range entries {
			report.NotFound++
			report.Items = append(report.Items, models.ItemResult{
				Position:    h.Position,
				PlannedName: h.Name,
				Outcome:     models.OutcomeNotFound,
			})
			o.metrics.ObserveDeletion(string(models.OutcomeNotFound))
		}
		o.recorder.Record(diag.LevelInfo, models.StepCleanupDone, "provider holds no resources; nothing deleted", map[string]any{
			"planned": len(entries),
		})
		return report
	}

	for _, h := range entries {
		item := deleteOne(provider, h)
		switch item.Outcome {
		case models.OutcomeRemoved:
			report.Removed++
		case models.OutcomeNotFound:
			report.NotFound++
		default:
			report.Failed++
		}
		report.Items = append(report.Items, item)
		o.metrics.ObserveDeletion(string(item.Outcome))

		level := diag.LevelDetail
		if item.Outcome != models.OutcomeRemoved {
			level = diag.LevelWarn
		}
		extra := map[string]any{
			"position":     item.Position,
			"planned_name": item.PlannedName,
			"current_name": item.CurrentName,
			"outcome":      string(item.Outcome),
		}
		if item.Error != "" {
			extra["error"] = item.Error
		}
		o.recorder.Record(level, models.StepCleanupDelete, "delete "+string(item.Outcome), extra)
	}

	report.FinalCount = finalCount(provider)
	o.recorder.Record(diag.LevelInfo, models.StepCleanupDone, "deletions applied", map[string]any{
		"removed":     report.Removed,
		"failed":      report.Failed,
		"not_found":   report.NotFound,
		"final_count": report.FinalCount,
	})
	return report
}

func deleteOne(provider ResourceProvider, h models.ResourceHandle) models.ItemResult {
	item := models.ItemResult{Position: h.Position, PlannedName: h.Name}
	if h.Position < 1 {
		item.Outcome = models.OutcomeNotFound
		return item
	}

	// Re-fetch for reporting: another code path may have changed the set
	// since the scan.
	current, err := safeAt(provider, h.Position)
	switch {
	case errors.Is(err, models.ErrPositionOutOfRange):
		item.Outcome = models.OutcomeNotFound
		return item
	case err != nil:
		item.Error = err.Error()
	default:
		item.CurrentName = current.Name
	}

	if err := safeDelete(provider, h.Position); err != nil {
		if errors.Is(err, models.ErrPositionOutOfRange) {
			item.Outcome = models.OutcomeNotFound
			return item
		}
		item.Outcome = models.OutcomeDeleteFailed
		item.Error = (&models.DeleteFailedError{Position: h.Position, Name: h.Name, Err: err}).Error()
		return item
	}

	item.Outcome = models.OutcomeRemoved
	item.Error = ""
	return item
}

// descendingUnique returns a copy of entries ordered by position, highest
// first, keeping the first entry seen for any repeated position.
func descendingUnique(entries []models.ResourceHandle) []models.ResourceHandle {
	out := make([]models.ResourceHandle, 0, len(entries))
	seen := make(map[int]struct{}, len(entries))
	for _, h := range entries {
		if _, ok := seen[h.Position]; ok {
			continue
		}
		seen[h.Position] = struct{}{}
		out = append(out, h)
	}
	slices.SortStableFunc(out, func(a, b models.ResourceHandle) int {
		return b.Position - a.Position
	})
	return out
}

func finalCount(provider ResourceProvider) int {
	n, err := safeCount(provider)
	if err != nil {
		return -1
	}
	return n
}
