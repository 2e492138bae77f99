package pipeline

import "github.com/nkefor/cutover/pkg/types"

// validTransitions is the edge set of the deployment state machine. An
// empty source phase means the run has not started yet.
var validTransitions = map[types.Phase][]types.Phase{
	"": {types.PhaseResolving},
	types.PhaseResolving: {
		types.PhaseDeployingStandby,
		types.PhaseFailed,
	},
	types.PhaseDeployingStandby: {
		types.PhasePreSwitchHealthCheck,
		types.PhaseFailed,
	},
	types.PhasePreSwitchHealthCheck: {
		types.PhaseSwitching,
		types.PhaseFailed,
	},
	types.PhaseSwitching: {
		types.PhasePostSwitchHealthCheck,
		types.PhaseRollingBack,
	},
	types.PhasePostSwitchHealthCheck: {
		types.PhasePromoted,
		types.PhaseRollingBack,
	},
	types.PhaseRollingBack: {
		types.PhaseRolledBack,
		types.PhaseFailed,
	},
}

// ValidTransition reports whether the state machine permits moving from
// one phase to another. Terminal phases have no outgoing edges.
func ValidTransition(from, to types.Phase) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
