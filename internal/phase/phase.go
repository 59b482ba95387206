// Package phase implements the named phase sequence, write-permission
// model and module scheduler of spec §4.8/§5. The teacher drives its
// world with ebiten's single fixed Update() callback and has no phase or
// permission concept to generalize; this package is written fresh in the
// repository's idiom (small value types, *ECSError failures) rather than
// adapted from any one teacher file.
package phase

import (
	"corecs/internal/errs"
)

// Phase is one step of the total-order frame sequence (spec §4.8).
type Phase int

const (
	Initialization Phase = iota
	NetworkReceive
	Simulation
	NetworkSend
	Presentation

	phaseCount
)

func (p Phase) String() string {
	switch p {
	case Initialization:
		return "Initialization"
	case NetworkReceive:
		return "NetworkReceive"
	case Simulation:
		return "Simulation"
	case NetworkSend:
		return "NetworkSend"
	case Presentation:
		return "Presentation"
	default:
		return "Unknown"
	}
}

// Permission governs what a phase may write (spec §4.8).
type Permission int

const (
	// ReadOnly forbids every structural or value write.
	ReadOnly Permission = iota
	// ReadWriteAll allows writing any entity regardless of authority.
	ReadWriteAll
	// OwnedOnly allows writing only entities this node is authoritative
	// for (authority_mask bit set for the relevant component).
	OwnedOnly
	// UnownedOnly allows writing only entities this node is NOT
	// authoritative for, the shape network-receive ingestion needs.
	UnownedOnly
)

// DefaultPermission is the permission each phase carries unless a host
// overrides it via Sequence.WithPermission (spec §4.8 names the phases
// and the permission vocabulary but leaves the binding between them to
// the host; these are the defaults a typical authoritative-simulation
// host wants).
func DefaultPermission(p Phase) Permission {
	switch p {
	case Initialization:
		return ReadWriteAll
	case NetworkReceive:
		return UnownedOnly
	case Simulation:
		return OwnedOnly
	case NetworkSend:
		return ReadOnly
	case Presentation:
		return ReadOnly
	default:
		return ReadOnly
	}
}

// CheckWrite reports whether a write to an entity with the given
// authority bit (true if this node is authoritative for the component
// being written) is permitted under perm. Violations are reported as
// *ECSError. repo.Repository calls this on every component write; it
// does not consult errs.BuildMode, so the check also runs in Release
// mode.
func CheckWrite(perm Permission, authoritative bool) error {
	switch perm {
	case ReadOnly:
		return errs.New(errs.PermissionViolation, "write attempted during a read-only phase")
	case ReadWriteAll:
		return nil
	case OwnedOnly:
		if !authoritative {
			return errs.New(errs.PermissionViolation, "write to an unowned entity during an owned-only phase")
		}
		return nil
	case UnownedOnly:
		if authoritative {
			return errs.New(errs.PermissionViolation, "write to an owned entity during an unowned-only phase")
		}
		return nil
	default:
		return errs.New(errs.PermissionViolation, "unrecognized phase permission")
	}
}

// Sequence tracks the current phase within a frame and enforces the
// forward-only transition rule (spec §4.8): a frame may only advance
// through phases in increasing order, and the sequence resets to
// Initialization at the next tick boundary.
type Sequence struct {
	current     Phase
	permissions [int(phaseCount)]Permission
}

// NewSequence starts a sequence at Initialization with the default
// permission table.
func NewSequence() *Sequence {
	s := &Sequence{current: Initialization}
	for p := Phase(0); p < phaseCount; p++ {
		s.permissions[p] = DefaultPermission(p)
	}
	return s
}

// WithPermission overrides the permission a given phase carries.
func (s *Sequence) WithPermission(p Phase, perm Permission) {
	s.permissions[p] = perm
}

// Current returns the active phase.
func (s *Sequence) Current() Phase { return s.current }

// Permission returns the active phase's write permission.
func (s *Sequence) Permission() Permission { return s.permissions[s.current] }

// Advance transitions to the given phase. Fails if to is not strictly
// after the current phase.
func (s *Sequence) Advance(to Phase) error {
	if to <= s.current {
		return errs.New(errs.PermissionViolation, "phase transitions must move forward within a frame")
	}
	s.current = to
	return nil
}

// ResetForNewTick returns the sequence to Initialization, called once per
// frame at the tick boundary.
func (s *Sequence) ResetForNewTick() {
	s.current = Initialization
}
