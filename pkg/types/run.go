package types

// RunStatus is the overall outcome of one archive run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)

// ArchiveRun is one row of the append-only run ledger. Exactly one row is
// written per pipeline invocation regardless of outcome, and rows are never
// updated afterwards.
type ArchiveRun struct {
	ID                 int64     `json:"id"`
	RunID              string    `json:"runId"`
	RunDate            string    `json:"runDate"`
	TradesArchived     int64     `json:"tradesArchived"`
	LifeEventsArchived int64     `json:"lifeEventsArchived"`
	ItemEventsArchived int64     `json:"itemEventsArchived"`
	FilesCleared       int64     `json:"filesCleared"`
	DurationMS         int64     `json:"durationMs"`
	Status             RunStatus `json:"status"`
	Error              string    `json:"error,omitempty"`
	CreatedAt          int64     `json:"createdAt"`
}

// FamilyResult summarizes one record family's share of a run.
type FamilyResult struct {
	// FilesListed is the number of source files found for the family,
	// including files that later failed to parse.
	FilesListed int `json:"filesListed"`

	// FilesParsed is the number of files whose content was captured.
	FilesParsed int `json:"filesParsed"`

	// RecordsArchived is the number of rows committed for the family.
	RecordsArchived int64 `json:"recordsArchived"`

	// FilesCleared is the number of source files deleted after commit.
	FilesCleared int `json:"filesCleared"`
}

// RunResult mirrors the ledger row and adds the per-family breakdown
// returned to the caller of RunArchive.
type RunResult struct {
	RunID        string       `json:"runId"`
	RunDate      string       `json:"runDate"`
	Trades       FamilyResult `json:"trades"`
	LifeEvents   FamilyResult `json:"lifeEvents"`
	ItemEvents   FamilyResult `json:"itemEvents"`
	FilesCleared int64        `json:"filesCleared"`
	DurationMS   int64        `json:"durationMs"`
	Status       RunStatus    `json:"status"`
	Error        string       `json:"error,omitempty"`
}
