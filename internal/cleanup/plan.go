package cleanup

import (
	"fmt"

	"github.com/dotcommander/refresher/internal/diag"
	"github.com/dotcommander/refresher/internal/models"
)

// PlanDeletions scans positions 1..Count once, front to back, and returns every
// resource matching predicate paired with its scan-time position. The provider
// is never mutated. A resource that cannot be read becomes an unreadable item
// and the scan continues; only a failure to read Count aborts the plan.
func PlanDeletions(provider ResourceProvider, predicate Predicate, opts ...Option) (models.DeletionPlan, error) {
	o := buildOptions(opts)

	count, err := safeCount(provider)
	if err != nil {
		o.recorder.Record(diag.LevelError, models.StepCleanupPlan, "could not read resource count", map[string]any{"error": err.Error()})
		return models.DeletionPlan{}, fmt.Errorf("count resources: %w", err)
	}

	plan := models.DeletionPlan{ScannedCount: count}
	for pos := 1; pos <= count; pos++ {
		h, err := safeAt(provider, pos)
		if err != nil {
			uerr := &models.ResourceUnreadableError{Position: pos, Err: err}
			plan.Unreadable = append(plan.Unreadable, models.ItemResult{
				Position: pos,
				Outcome:  models.OutcomeUnreadable,
				Error:    uerr.Error(),
			})
			o.recorder.Record(diag.LevelWarn, models.StepCleanupScanItem, "resource unreadable during scan", map[string]any{
				"position": pos,
				"error":    err.Error(),
			})
			continue
		}
		// The provider's own view of the position is not trusted; the scan
		// index is the position this plan will delete.
		h.Position = pos

		matched, perr := safeMatch(predicate, h)
		if perr != nil {
			plan.Unreadable = append(plan.Unreadable, models.ItemResult{
				Position:    pos,
				PlannedName: h.Name,
				Outcome:     models.OutcomeUnreadable,
				Error:       perr.Error(),
			})
			o.recorder.Record(diag.LevelWarn, models.StepCleanupScanItem, "predicate failed", map[string]any{
				"position": pos,
				"name":     h.Name,
				"error":    perr.Error(),
			})
			continue
		}
		if matched {
			plan.Entries = append(plan.Entries, h)
		}
	}

	o.recorder.Record(diag.LevelInfo, models.StepCleanupPlan, "deletion plan built", map[string]any{
		"scanned":    count,
		"selected":   len(plan.Entries),
		"unreadable": len(plan.Unreadable),
	})
	return plan, nil
}

func safeCount(p ResourceProvider) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("count panicked: %v", r)
		}
	}()
	return p.Count()
}

func safeAt(p ResourceProvider, pos int) (h models.ResourceHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read panicked: %v", r)
		}
	}()
	return p.At(pos)
}

func safeDelete(p ResourceProvider, pos int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delete panicked: %v", r)
		}
	}()
	return p.Delete(pos)
}

func safeMatch(predicate Predicate, h models.ResourceHandle) (matched bool, err error) {
	if predicate == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predicate panicked: %v", r)
		}
	}()
	return predicate(h), nil
}
