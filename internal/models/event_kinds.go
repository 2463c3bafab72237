package models

// Diagnostics steps recorded by the core and action layers.
const (
	StepCleanupPlan     = "cleanup.plan"
	StepCleanupScanItem = "cleanup.scan_item"
	StepCleanupDelete   = "cleanup.delete"
	StepCleanupDone     = "cleanup.done"
	StepSessionState    = "session.state"
	StepAttemptStart    = "attempt.start"
	StepAttemptFinish   = "attempt.finish"
	StepAttemptSchedule = "attempt.schedule"
	StepSessionComplete = "session.complete"
	StepRefreshCommand  = "refresh.command"
	StepRefreshValidate = "refresh.validate"
	StepRunStarted      = "run.started"
	StepRunFinished     = "run.finished"
)
