package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/models"
	"github.com/HuongNV13/moodle/common/repository"
	"github.com/HuongNV13/moodle/common/validation"
)

// leaseKey guards the drain so overlapping schedules and multiple worker
// replicas never dispatch the same entry twice
const leaseKey = "moodlenet:sync:drain"

// RoomGateway applies room mutations against the external communication
// service
type RoomGateway interface {
	CreateRoom(ctx context.Context, room *models.Room) (string, error)
	UpdateRoom(ctx context.Context, room *models.Room) error
	AddMembers(ctx context.Context, room *models.Room, userIDs []int64) error
	UpdateMemberships(ctx context.Context, room *models.Room, userIDs []int64) error
	RemoveMembers(ctx context.Context, room *models.Room, userIDs []int64) error
	DeleteRoom(ctx context.Context, room *models.Room) error
}

type queueStore interface {
	ListByType(ctx context.Context, syncType models.SyncType) ([]*models.SyncEntry, error)
	Delete(ctx context.Context, id int64) error
}

type roomStore interface {
	GetByID(ctx context.Context, id int64) (*models.Room, error)
	SetExternalID(ctx context.Context, id int64, externalID string) error
	UpdateConfig(ctx context.Context, id int64, config []byte) error
	Delete(ctx context.Context, id int64) error
}

type leaseClient interface {
	SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Drainer empties the sync queue one type at a time, in the fixed priority
// order. Each invocation fully processes the first non-empty type and stops,
// so structural mutations always land before membership ones.
type Drainer struct {
	queue    queueStore
	rooms    roomStore
	gateway  RoomGateway
	redis    leaseClient
	leaseTTL time.Duration
	log      *logger.Logger
}

// NewDrainer creates a drainer
func NewDrainer(queue queueStore, rooms roomStore, gateway RoomGateway, redis leaseClient, leaseTTL time.Duration, log *logger.Logger) *Drainer {
	return &Drainer{
		queue:    queue,
		rooms:    rooms,
		gateway:  gateway,
		redis:    redis,
		leaseTTL: leaseTTL,
		log:      log,
	}
}

// Drain runs one drain invocation. Entries are deleted only after a
// successful dispatch; a failed entry is skipped and left for the next run,
// so delivery is at-least-once and the gateway must tolerate replays.
func (d *Drainer) Drain(ctx context.Context) error {
	acquired, err := d.redis.SetNX(ctx, leaseKey, "1", d.leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire drain lease: %w", err)
	}
	if !acquired {
		d.log.Debug("drain lease held elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := d.redis.Delete(context.WithoutCancel(ctx), leaseKey); err != nil {
			d.log.Warn("failed to release drain lease", "error", err)
		}
	}()

	for _, syncType := range models.SyncDrainOrder {
		entries, err := d.queue.ListByType(ctx, syncType)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}

		d.log.Info("draining sync entries", "type", string(syncType), "count", len(entries))

		for _, entry := range entries {
			if err := d.dispatch(ctx, entry); err != nil {
				d.log.Warn("sync entry dispatch failed, leaving for next run",
					"entry_id", entry.ID,
					"type", string(entry.Type),
					"room_id", entry.RoomID,
					"error", err,
				)
				continue
			}
			if err := d.queue.Delete(ctx, entry.ID); err != nil {
				d.log.Error("failed to delete dispatched sync entry", "entry_id", entry.ID, "error", err)
			}
		}

		// One type per invocation; later types wait for the next run.
		return nil
	}

	return nil
}

// dispatch applies one entry against the external service
func (d *Drainer) dispatch(ctx context.Context, entry *models.SyncEntry) error {
	room, err := d.rooms.GetByID(ctx, entry.RoomID)
	if errors.Is(err, repository.ErrNotFound) {
		// The room record is gone; the entry can never be applied.
		d.log.Warn("dropping sync entry for missing room", "entry_id", entry.ID, "room_id", entry.RoomID)
		return nil
	}
	if err != nil {
		return err
	}

	switch entry.Type {
	case models.SyncCreateRoom:
		externalID, err := d.gateway.CreateRoom(ctx, room)
		if err != nil {
			return err
		}
		return d.rooms.SetExternalID(ctx, room.ID, externalID)

	case models.SyncUpdateRoom:
		if len(entry.CustomData) > 0 {
			if err := validation.ValidateRoomConfigPatch(entry.CustomData); err != nil {
				return err
			}
			patched, err := jsonpatch.MergePatch(room.Config, entry.CustomData)
			if err != nil {
				return fmt.Errorf("failed to merge room config patch: %w", err)
			}
			room.Config = patched
			if err := d.rooms.UpdateConfig(ctx, room.ID, patched); err != nil {
				return err
			}
		}
		return d.gateway.UpdateRoom(ctx, room)

	case models.SyncAddUser:
		userIDs, err := decodeUserData(entry)
		if err != nil {
			return err
		}
		return d.gateway.AddMembers(ctx, room, userIDs)

	case models.SyncUpdatePermission:
		userIDs, err := decodeUserData(entry)
		if err != nil {
			return err
		}
		return d.gateway.UpdateMemberships(ctx, room, userIDs)

	case models.SyncRemoveUser:
		userIDs, err := decodeUserData(entry)
		if err != nil {
			return err
		}
		return d.gateway.RemoveMembers(ctx, room, userIDs)

	case models.SyncDeleteRoom:
		if err := d.gateway.DeleteRoom(ctx, room); err != nil {
			return err
		}
		return d.rooms.Delete(ctx, room.ID)

	default:
		// An unknown type can never succeed; drop it rather than wedge the
		// queue.
		d.log.Error("dropping sync entry of unknown type", "entry_id", entry.ID, "type", string(entry.Type))
		return nil
	}
}

func decodeUserData(entry *models.SyncEntry) ([]int64, error) {
	var data models.SyncUserData
	if err := json.Unmarshal(entry.CustomData, &data); err != nil {
		return nil, fmt.Errorf("failed to decode user data for entry %d: %w", entry.ID, err)
	}
	return data.UserIDs, nil
}
