package relax

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/sampling"
)

// ErrUsage is returned when the generator API is called out of order.
var ErrUsage = errors.New("usage error")

// Re-exported so callers can check every setup failure against this package.
var (
	ErrConfiguration   = config.ErrInvalid
	ErrSamplingFailure = sampling.ErrSamplingFailure
)

// configErr marks err as a configuration problem unless it already is one.
func configErr(err error) error {
	if err == nil || errors.Is(err, ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

// State is the lifecycle stage of a Generator.
type State uint8

const (
	Uninitialized State = iota
	SetupDone
	Iterating
	Converged
	MaxIterationsReached
)

var stateNames = [...]string{"uninitialized", "setup_done", "iterating", "converged", "max_iterations_reached"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Terminated reports whether no further iterations may run.
func (s State) Terminated() bool {
	return s == Converged || s == MaxIterationsReached
}

// Termination is the reason a run stopped.
type Termination string

const (
	TerminationNone          Termination = ""
	TerminationConverged     Termination = "converged"
	TerminationMaxIterations Termination = "max_iterations"
)

// WarningKind classifies non-fatal per-particle problems.
type WarningKind uint8

const (
	// NeighborDegeneracy: the neighbour search radius reached its limit
	// before the particle had enough neighbours.
	NeighborDegeneracy WarningKind = iota
	// SubIterationNonConvergence: the smoothing length root find ran out of
	// iterations and the previous value was kept.
	SubIterationNonConvergence
)

func (k WarningKind) String() string {
	switch k {
	case NeighborDegeneracy:
		return "neighbor_degeneracy"
	case SubIterationNonConvergence:
		return "sub_iteration_non_convergence"
	}
	return fmt.Sprintf("WarningKind(%d)", k)
}

// Warning records one kind of non-fatal problem seen in one iteration.
// Particle is the first affected index, Count the number affected.
type Warning struct {
	Kind      WarningKind
	Iteration int
	Particle  int
	Count     int
	Message   string
}

// maxWarnings bounds the warnings kept on a Generator; later ones are
// counted in droppedWarnings only.
const maxWarnings = 1000
