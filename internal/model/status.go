package model

import "time"

// MachineStatusRecord is the most recent observation of a machine. There is
// one row per machine and every poll overwrites it.
type MachineStatusRecord struct {
	MachineID  int64     `gorm:"primaryKey;autoIncrement:false"`
	ObservedAt time.Time `gorm:"not null"`
	// State is empty when the state could not be derived; Error says why.
	State string `gorm:"size:16"`
	Error string

	Running                    bool
	Starter                    uint32
	Reserved                   bool
	Reserver                   uint32
	InMaintenance              uint8
	RemainingSeconds           int64
	GatewayOffline             uint8
	RemainingTimeIsFromMachine uint8
	ControllerLogic            uint32
}
