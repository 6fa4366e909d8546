package compile

// ActionKind enumerates the policy decisions after a pass.
type ActionKind string

const (
	ContinuePass ActionKind = "continue"
	Succeed      ActionKind = "succeed"
	Abort        ActionKind = "abort"
)

// Action is the convergence decision for the orchestrator.
type Action struct {
	Kind   ActionKind
	Reason FailureKind // set when Kind == Abort
}

// Policy decides after each pass whether the fixed-point iteration should
// continue, stop successfully, or abort. It is pluggable so the stabilization
// heuristic can be tested independently of process execution.
type Policy struct {
	MaxPasses int
}

// NextAction inspects the ordered pass history and the artifact state.
//
// Typesetting with cross-references is a fixed-point iteration: aux files
// written by pass n feed pass n+1. The policy bounds the iteration at
// MaxPasses and exits early once the aux state stops changing.
func (p Policy) NextAction(history []PassRecord, artifactReady bool) Action {
	if len(history) == 0 {
		return Action{Kind: ContinuePass}
	}
	last := history[len(history)-1]

	if last.Fatal {
		return Action{Kind: Abort, Reason: CompileError}
	}

	n := len(history)
	if n >= p.MaxPasses {
		if artifactReady {
			return Action{Kind: Succeed}
		}
		return Action{Kind: Abort, Reason: ConvergenceFailed}
	}

	// Early exit: aux state stabilized. Requires at least two passes so the
	// first pass's freshly written aux files have been consumed once.
	if !last.AuxChanged && n >= 2 && artifactReady {
		return Action{Kind: Succeed}
	}

	return Action{Kind: ContinuePass}
}
