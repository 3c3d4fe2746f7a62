package model

import "time"

// Machine is a washer or dryer at one pay2wash location.
type Machine struct {
	ID         int64  `gorm:"primaryKey"`
	Location   string `gorm:"uniqueIndex:idx_machine_location_name;size:64;not null"`
	Name       string `gorm:"uniqueIndex:idx_machine_location_name;size:128;not null"`
	ExternalID string `gorm:"size:64;not null"` // pay2wash machine_pk
	Kind       string `gorm:"size:16;not null"`
	Seq        int
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Associations
	Status *MachineStatusRecord `gorm:"foreignKey:MachineID;constraint:OnDelete:CASCADE"`
}
