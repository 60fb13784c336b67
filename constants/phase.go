package constants

// Phase is the lifecycle state of an enrichment job as seen by observers.
type Phase string

// Stable values (stored as-is in the jobs table).
const (
	PhaseQueued     Phase = "QUEUED"
	PhaseExtracting Phase = "EXTRACTING"
	PhaseExtracted  Phase = "EXTRACTED"
	PhaseGenerating Phase = "GENERATING"
	PhaseDone       Phase = "DONE"
	PhaseFailed     Phase = "FAILED"
)

// Progress checkpoints published by the processor.
const (
	PercentQueued     = 10
	PercentExtracting = 30
	PercentExtracted  = 50
	PercentGenerating = 75
	PercentDone       = 100
)

// Terminal reports whether no further progress will be published for the phase.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// TerminalPhases lists the phases a finished job can be in.
func TerminalPhases() []string {
	return []string{string(PhaseDone), string(PhaseFailed)}
}
