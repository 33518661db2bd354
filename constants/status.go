package constants

// RunStatus is the canonical status for rows in locate_run.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusRunning   RunStatus = "RUNNING"   // analysis or enrichment in progress
	RunStatusSucceeded RunStatus = "SUCCEEDED" // enriched tree stored
	RunStatusFailed    RunStatus = "FAILED"    // terminal failure
)
