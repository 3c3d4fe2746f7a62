package status

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UserID identifies a pay2wash user. Zero means no user.
type UserID uint32

// IsNone reports whether the id is the "no user" placeholder.
func (u UserID) IsNone() bool { return u == 0 }

// JSONMachineStatus is one machine entry of the machine_statuses feed, as sent.
type JSONMachineStatus struct {
	Running                    bool          `json:"running"`
	Starter                    UserID        `json:"starter"`
	Reserved                   bool          `json:"reserved"`
	Reserver                   UserID        `json:"reserver"`
	InMaintenance              TriBool       `json:"in_maintenance"`
	RemainingTime              RemainingTime `json:"remaining_time"`
	GatewayOffline             TriBool       `json:"gateway_offline"`
	RemainingTimeIsFromMachine TriBool       `json:"remaining_time_is_from_machine"`
	// ControllerLogic has no known meaning and is passed through untouched.
	ControllerLogic uint32 `json:"controller_logic"`
}

// UnmarshalJSON decodes the entry and rejects objects missing any field.
func (s *JSONMachineStatus) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var missing []string
	for _, name := range []string{
		"running", "starter", "reserved", "reserver", "in_maintenance",
		"remaining_time", "gateway_offline", "remaining_time_is_from_machine", "controller_logic",
	} {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("machine status is missing fields: %s", strings.Join(missing, ", "))
	}

	// alias drops this method so the plain struct decoder runs
	type alias JSONMachineStatus
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*s = JSONMachineStatus(decoded)
	return nil
}

// StateKind names a MachineState variant.
type StateKind string

const (
	StateKindRunning     StateKind = "running"
	StateKindReserved    StateKind = "reserved"
	StateKindMaintenance StateKind = "maintenance"
	StateKindIdle        StateKind = "idle"
)

// AllStateKinds lists every variant in a fixed order.
var AllStateKinds = []StateKind{StateKindRunning, StateKindReserved, StateKindMaintenance, StateKindIdle}

// MachineState is exactly one of Running, Reserved, Maintenance or Idle.
type MachineState interface {
	Kind() StateKind
	isMachineState()
}

type Running struct {
	Starter                    UserID
	RemainingTime              RemainingTime
	RemainingTimeIsFromMachine TriBool
}

type Reserved struct {
	Reserver UserID
}

type Maintenance struct{}

type Idle struct{}

func (Running) Kind() StateKind     { return StateKindRunning }
func (Reserved) Kind() StateKind    { return StateKindReserved }
func (Maintenance) Kind() StateKind { return StateKindMaintenance }
func (Idle) Kind() StateKind        { return StateKindIdle }

func (Running) isMachineState()     {}
func (Reserved) isMachineState()    {}
func (Maintenance) isMachineState() {}
func (Idle) isMachineState()        {}

// DeriveState maps (running, reserved, in_maintenance) onto a single state.
//
//	running  reserved  in_maintenance  state
//	true     false     false           Running
//	false    true      false           Reserved
//	false    false     true            Maintenance
//	false    false     false           Idle
//
// An unknown in_maintenance code yields *UnknownTriBoolError; every other
// combination yields *InvariantViolationError.
func DeriveState(raw JSONMachineStatus) (MachineState, error) {
	maintenance, known := raw.InMaintenance.Bool()
	if !known {
		return nil, &UnknownTriBoolError{Value: raw.InMaintenance.Raw()}
	}

	switch {
	case raw.Running && !raw.Reserved && !maintenance:
		return Running{
			Starter:                    raw.Starter,
			RemainingTime:              raw.RemainingTime,
			RemainingTimeIsFromMachine: raw.RemainingTimeIsFromMachine,
		}, nil
	case !raw.Running && raw.Reserved && !maintenance:
		return Reserved{Reserver: raw.Reserver}, nil
	case !raw.Running && !raw.Reserved && maintenance:
		return Maintenance{}, nil
	case !raw.Running && !raw.Reserved && !maintenance:
		return Idle{}, nil
	}

	return nil, &InvariantViolationError{
		Running:       raw.Running,
		Reserved:      raw.Reserved,
		InMaintenance: raw.InMaintenance,
	}
}

// MachineStatus pairs the derived state with the raw entry it came from.
// When derivation fails State is nil and Err holds the reason; Raw is always set.
type MachineStatus struct {
	State MachineState
	Err   error
	Raw   JSONMachineStatus
}

// NewMachineStatus derives the state of raw and keeps any failure on the value.
func NewMachineStatus(raw JSONMachineStatus) MachineStatus {
	state, err := DeriveState(raw)
	return MachineStatus{State: state, Err: err, Raw: raw}
}

// Valid reports whether a state could be derived.
func (m MachineStatus) Valid() bool { return m.Err == nil && m.State != nil }
