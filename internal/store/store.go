package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundry-status-exporter/internal/model"
	"laundry-status-exporter/internal/parse"
	"laundry-status-exporter/internal/status"
)

// Store defines the interface for all database operations.
type Store interface {
	UpsertMachines(ctx context.Context, location string, mappings map[string]string) error
	UpdateStatuses(ctx context.Context, now time.Time, location string, statuses map[string]status.MachineStatus) ([]int64, error)
	Machines(ctx context.Context) ([]model.Machine, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

// UpsertMachines records the machines listed on a location's page. mappings
// goes from pay2wash machine id to display name.
func (s *gormStore) UpsertMachines(ctx context.Context, location string, mappings map[string]string) error {
	existing, err := s.fetchMachines(ctx, location)
	if err != nil {
		slog.WarnContext(ctx, "could not pre-fetch machines", "location", location, "err", err)
		existing = make(map[string]model.Machine)
	}

	var machinesToUpsert []model.Machine
	for externalID, name := range mappings {
		machine, needsUpsert := prepareMachine(location, externalID, name, existing)
		if needsUpsert {
			machinesToUpsert = append(machinesToUpsert, machine)
		}
	}

	if len(machinesToUpsert) == 0 {
		return nil
	}

	sort.Slice(machinesToUpsert, func(i, j int) bool { return machinesToUpsert[i].Name < machinesToUpsert[j].Name })
	slog.DebugContext(ctx, "batch upserting machines", "location", location, "count", len(machinesToUpsert))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return batchUpsertMachines(tx, machinesToUpsert)
	})
}

// UpdateStatuses overwrites the latest status of every machine in statuses
// and returns the ids of machines that were busy before and are idle now.
// Statuses for machines that are not known yet are skipped.
func (s *gormStore) UpdateStatuses(ctx context.Context, now time.Time, location string, statuses map[string]status.MachineStatus) ([]int64, error) {
	machines, err := s.fetchMachines(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch machines of location %s: %w", location, err)
	}

	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	var becameIdle []int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			machine, ok := machines[name]
			if !ok {
				slog.WarnContext(ctx, "status for unknown machine, skipping", "location", location, "machine", name)
				continue
			}

			record := newStatusRecord(machine.ID, now, statuses[name])
			if isNowIdle(machine.Status, record) {
				becameIdle = append(becameIdle, machine.ID)
			}

			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
				return fmt.Errorf("failed to save status for machine %d: %w", machine.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return becameIdle, nil
}

// Machines returns every machine with its latest status, ordered by location
// and name.
func (s *gormStore) Machines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Preload("Status").Order("location").Order("name").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

func (s *gormStore) fetchMachines(ctx context.Context, location string) (map[string]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Preload("Status").Where("location = ?", location).Find(&machines).Error; err != nil {
		return nil, err
	}
	machineMap := make(map[string]model.Machine, len(machines))
	for _, m := range machines {
		machineMap[m.Name] = m
	}
	return machineMap, nil
}

func prepareMachine(location, externalID, name string, existing map[string]model.Machine) (model.Machine, bool) {
	parsed, err := parse.ParseName(name)
	if err != nil {
		slog.Debug("machine name does not encode a kind", "machine", name, "err", err)
	}

	newMachine := model.Machine{
		Location:   location,
		Name:       name,
		ExternalID: externalID,
		Kind:       string(parsed.Kind),
		Seq:        parsed.Seq,
	}

	if old, exists := existing[name]; exists {
		if old.ExternalID == newMachine.ExternalID &&
			old.Kind == newMachine.Kind &&
			old.Seq == newMachine.Seq {
			return newMachine, false
		}
	}
	return newMachine, true
}

func batchUpsertMachines(tx *gorm.DB, machines []model.Machine) error {
	return tx.Omit("Status").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "location"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_id", "kind", "seq", "updated_at"}),
	}).Create(&machines).Error
}

func newStatusRecord(machineID int64, now time.Time, ms status.MachineStatus) model.MachineStatusRecord {
	raw := ms.Raw
	record := model.MachineStatusRecord{
		MachineID:                  machineID,
		ObservedAt:                 now,
		Running:                    raw.Running,
		Starter:                    uint32(raw.Starter),
		Reserved:                   raw.Reserved,
		Reserver:                   uint32(raw.Reserver),
		InMaintenance:              raw.InMaintenance.Raw(),
		RemainingSeconds:           raw.RemainingTime.Seconds(),
		GatewayOffline:             raw.GatewayOffline.Raw(),
		RemainingTimeIsFromMachine: raw.RemainingTimeIsFromMachine.Raw(),
		ControllerLogic:            raw.ControllerLogic,
	}
	if ms.State != nil {
		record.State = string(ms.State.Kind())
	}
	if ms.Err != nil {
		record.Error = ms.Err.Error()
	}
	return record
}

func isNowIdle(previous *model.MachineStatusRecord, current model.MachineStatusRecord) bool {
	idle := string(status.StateKindIdle)
	return previous != nil && previous.State != idle && current.State == idle
}
