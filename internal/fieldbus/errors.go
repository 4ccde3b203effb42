package fieldbus

import (
	"errors"
	"fmt"
)

// Control-plane errors are returned synchronously and never retried here;
// retry policy belongs to the caller.
var (
	ErrMasterUnavailable     = errors.New("fieldbus: no master available")
	ErrNoMaster              = errors.New("fieldbus: master not requested")
	ErrAlreadyRequested      = errors.New("fieldbus: master already requested")
	ErrInvalidHandle         = errors.New("fieldbus: invalid handle")
	ErrAlreadyActivated      = errors.New("fieldbus: session already activated")
	ErrNotActivated          = errors.New("fieldbus: session not activated")
	ErrReleased              = errors.New("fieldbus: session released")
	ErrConfigurationFailed   = errors.New("fieldbus: slave configuration failed")
	ErrPdoRegistrationFailed = errors.New("fieldbus: pdo registration failed")
	ErrActivationFailed      = errors.New("fieldbus: activation failed")
	ErrResetFailed           = errors.New("fieldbus: reset failed")
	ErrOffsetOutOfBounds     = errors.New("fieldbus: offset out of bounds")
	ErrEngineRunning         = errors.New("fieldbus: cyclic engine already running")
	ErrEngineNotRunning      = errors.New("fieldbus: cyclic engine not running")
)

// CycleFault is reported to subscribers when a runtime call fails inside the
// hot loop. The engine fail-stops instead of continuing with possibly
// inconsistent process data.
type CycleFault struct {
	Cycle    uint64
	DomainID int // -1 when the fault is not tied to a domain
	Err      error
}

func (f *CycleFault) Error() string {
	if f.DomainID >= 0 {
		return fmt.Sprintf("fieldbus: cycle %d fault on domain %d: %v", f.Cycle, f.DomainID, f.Err)
	}
	return fmt.Sprintf("fieldbus: cycle %d fault: %v", f.Cycle, f.Err)
}

func (f *CycleFault) Unwrap() error { return f.Err }
