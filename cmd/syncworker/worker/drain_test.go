package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/models"
	"github.com/HuongNV13/moodle/common/repository"
)

type fakeQueue struct {
	entries []*models.SyncEntry
	deleted []int64
}

func (f *fakeQueue) ListByType(ctx context.Context, syncType models.SyncType) ([]*models.SyncEntry, error) {
	var out []*models.SyncEntry
	for _, e := range f.entries {
		if e.Type == syncType && !f.isDeleted(e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeQueue) Delete(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeQueue) isDeleted(id int64) bool {
	for _, d := range f.deleted {
		if d == id {
			return true
		}
	}
	return false
}

type fakeRooms struct {
	rooms       map[int64]*models.Room
	externalIDs map[int64]string
	configs     map[int64][]byte
	deleted     []int64
}

func newFakeRooms(rooms ...*models.Room) *fakeRooms {
	f := &fakeRooms{
		rooms:       make(map[int64]*models.Room),
		externalIDs: make(map[int64]string),
		configs:     make(map[int64][]byte),
	}
	for _, r := range rooms {
		f.rooms[r.ID] = r
	}
	return f
}

func (f *fakeRooms) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	room, ok := f.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *room
	return &copied, nil
}

func (f *fakeRooms) SetExternalID(ctx context.Context, id int64, externalID string) error {
	f.externalIDs[id] = externalID
	f.rooms[id].ExternalID = externalID
	return nil
}

func (f *fakeRooms) UpdateConfig(ctx context.Context, id int64, config []byte) error {
	f.configs[id] = config
	f.rooms[id].Config = config
	return nil
}

func (f *fakeRooms) Delete(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	delete(f.rooms, id)
	return nil
}

type gatewayCall struct {
	op      string
	roomID  int64
	userIDs []int64
}

type fakeGateway struct {
	calls   []gatewayCall
	failOps map[string]error
}

func (f *fakeGateway) fail(op string, err error) {
	if f.failOps == nil {
		f.failOps = make(map[string]error)
	}
	f.failOps[op] = err
}

func (f *fakeGateway) record(op string, room *models.Room, userIDs []int64) error {
	if err := f.failOps[op]; err != nil {
		return err
	}
	f.calls = append(f.calls, gatewayCall{op: op, roomID: room.ID, userIDs: userIDs})
	return nil
}

func (f *fakeGateway) CreateRoom(ctx context.Context, room *models.Room) (string, error) {
	if err := f.record("create", room, nil); err != nil {
		return "", err
	}
	return "ext-room", nil
}

func (f *fakeGateway) UpdateRoom(ctx context.Context, room *models.Room) error {
	return f.record("update", room, nil)
}

func (f *fakeGateway) AddMembers(ctx context.Context, room *models.Room, userIDs []int64) error {
	return f.record("add", room, userIDs)
}

func (f *fakeGateway) UpdateMemberships(ctx context.Context, room *models.Room, userIDs []int64) error {
	return f.record("permissions", room, userIDs)
}

func (f *fakeGateway) RemoveMembers(ctx context.Context, room *models.Room, userIDs []int64) error {
	return f.record("remove", room, userIDs)
}

func (f *fakeGateway) DeleteRoom(ctx context.Context, room *models.Room) error {
	return f.record("delete", room, nil)
}

func (f *fakeGateway) ops() []string {
	var ops []string
	for _, c := range f.calls {
		ops = append(ops, c.op)
	}
	return ops
}

type fakeLease struct {
	held     bool
	released bool
}

func (f *fakeLease) SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error) {
	return !f.held, nil
}

func (f *fakeLease) Delete(ctx context.Context, keys ...string) error {
	f.released = true
	return nil
}

func userData(t *testing.T, ids ...int64) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(models.SyncUserData{UserIDs: ids})
	require.NoError(t, err)
	return data
}

func entry(id int64, syncType models.SyncType, roomID int64, customData json.RawMessage) *models.SyncEntry {
	return &models.SyncEntry{ID: id, Type: syncType, RoomID: roomID, CustomData: customData, TimeCreated: time.Now()}
}

func testDrainer(queue *fakeQueue, rooms *fakeRooms, gateway *fakeGateway, lease *fakeLease) *Drainer {
	return NewDrainer(queue, rooms, gateway, lease, time.Minute, logger.New("error", "text"))
}

func TestDrain_OneTypePerInvocation(t *testing.T) {
	rooms := newFakeRooms(&models.Room{ID: 1}, &models.Room{ID: 2, ExternalID: "ext-2"})
	queue := &fakeQueue{entries: []*models.SyncEntry{
		entry(10, models.SyncAddUser, 2, userData(t, 5)),
		entry(11, models.SyncCreateRoom, 1, nil),
		entry(12, models.SyncCreateRoom, 2, nil),
	}}
	gateway := &fakeGateway{}
	lease := &fakeLease{}
	d := testDrainer(queue, rooms, gateway, lease)

	// First invocation drains only create_room, despite add_user being first
	// in the queue
	require.NoError(t, d.Drain(context.Background()))
	assert.Equal(t, []string{"create", "create"}, gateway.ops())
	assert.ElementsMatch(t, []int64{11, 12}, queue.deleted)
	assert.Equal(t, "ext-room", rooms.externalIDs[1])
	assert.True(t, lease.released)

	// Second invocation picks up add_user
	gateway.calls = nil
	require.NoError(t, d.Drain(context.Background()))
	assert.Equal(t, []string{"add"}, gateway.ops())
	assert.Contains(t, queue.deleted, int64(10))
	assert.Equal(t, []int64{5}, gateway.calls[0].userIDs)
}

func TestDrain_FailedEntryIsLeftForNextRun(t *testing.T) {
	rooms := newFakeRooms(&models.Room{ID: 1}, &models.Room{ID: 2})
	queue := &fakeQueue{entries: []*models.SyncEntry{
		entry(20, models.SyncCreateRoom, 1, nil),
		entry(21, models.SyncCreateRoom, 2, nil),
	}}
	gateway := &fakeGateway{}
	gateway.fail("create", errors.New("gateway down"))
	d := testDrainer(queue, rooms, gateway, &fakeLease{})

	require.NoError(t, d.Drain(context.Background()))

	// Both entries failed; neither is deleted
	assert.Empty(t, queue.deleted)

	// Once the gateway recovers, the next run delivers them
	gateway.failOps = nil
	require.NoError(t, d.Drain(context.Background()))
	assert.ElementsMatch(t, []int64{20, 21}, queue.deleted)
}

func TestDrain_LeaseHeldElsewhere(t *testing.T) {
	queue := &fakeQueue{entries: []*models.SyncEntry{entry(1, models.SyncCreateRoom, 1, nil)}}
	gateway := &fakeGateway{}
	d := testDrainer(queue, newFakeRooms(&models.Room{ID: 1}), gateway, &fakeLease{held: true})

	require.NoError(t, d.Drain(context.Background()))
	assert.Empty(t, gateway.calls)
	assert.Empty(t, queue.deleted)
}

func TestDrain_UpdateRoomMergesConfigPatch(t *testing.T) {
	room := &models.Room{ID: 1, ExternalID: "ext-1", Config: json.RawMessage(`{"name":"old","topic":"t"}`)}
	rooms := newFakeRooms(room)
	queue := &fakeQueue{entries: []*models.SyncEntry{
		entry(30, models.SyncUpdateRoom, 1, json.RawMessage(`{"name":"new"}`)),
	}}
	gateway := &fakeGateway{}
	d := testDrainer(queue, rooms, gateway, &fakeLease{})

	require.NoError(t, d.Drain(context.Background()))

	assert.Equal(t, []string{"update"}, gateway.ops())
	assert.JSONEq(t, `{"name":"new","topic":"t"}`, string(rooms.configs[1]))
	assert.Contains(t, queue.deleted, int64(30))
}

func TestDrain_UpdateRoomRejectsProtectedKeys(t *testing.T) {
	room := &models.Room{ID: 1, ExternalID: "ext-1", Config: json.RawMessage(`{"name":"old"}`)}
	rooms := newFakeRooms(room)
	queue := &fakeQueue{entries: []*models.SyncEntry{
		entry(31, models.SyncUpdateRoom, 1, json.RawMessage(`{"externalid":"forged"}`)),
	}}
	gateway := &fakeGateway{}
	d := testDrainer(queue, rooms, gateway, &fakeLease{})

	require.NoError(t, d.Drain(context.Background()))

	// The entry is left in place and nothing reached the gateway
	assert.Empty(t, gateway.calls)
	assert.Empty(t, queue.deleted)
	assert.JSONEq(t, `{"name":"old"}`, string(room.Config))
}

func TestDrain_DeleteRoomRemovesLocalRecord(t *testing.T) {
	rooms := newFakeRooms(&models.Room{ID: 4, ExternalID: "ext-4"})
	queue := &fakeQueue{entries: []*models.SyncEntry{
		entry(40, models.SyncDeleteRoom, 4, nil),
	}}
	gateway := &fakeGateway{}
	d := testDrainer(queue, rooms, gateway, &fakeLease{})

	require.NoError(t, d.Drain(context.Background()))

	assert.Equal(t, []string{"delete"}, gateway.ops())
	assert.Contains(t, rooms.deleted, int64(4))
	assert.Contains(t, queue.deleted, int64(40))
}

func TestDrain_EntryForMissingRoomIsDropped(t *testing.T) {
	queue := &fakeQueue{entries: []*models.SyncEntry{
		entry(50, models.SyncAddUser, 99, userData(t, 1)),
	}}
	gateway := &fakeGateway{}
	d := testDrainer(queue, newFakeRooms(), gateway, &fakeLease{})

	require.NoError(t, d.Drain(context.Background()))

	assert.Empty(t, gateway.calls)
	assert.Contains(t, queue.deleted, int64(50))
}

func TestDrain_EmptyQueue(t *testing.T) {
	d := testDrainer(&fakeQueue{}, newFakeRooms(), &fakeGateway{}, &fakeLease{})
	require.NoError(t, d.Drain(context.Background()))
}
