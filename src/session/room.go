package session

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/carebridge/realtime/src/conn"
	"github.com/carebridge/realtime/src/types"
)

// Rooms is the room-lifecycle reducer, the same shape as Appointments:
// one subscription, a list keyed by the response actions, terminal
// actions turned into notifications.
type Rooms struct {
	mgr      *conn.Manager
	notifier Notifier
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	unsub  func()
	rooms  []types.Room
}

// NewRooms builds the reducer and subscribes it to the fan-out.
func NewRooms(mgr *conn.Manager, notifier Notifier, logger zerolog.Logger) *Rooms {
	r := &Rooms{
		mgr:      mgr,
		notifier: notifier,
		logger:   logger.With().Str("component", "rooms").Logger(),
	}
	if r.notifier == nil {
		r.notifier = LogNotifier{Logger: r.logger}
	}
	r.unsub = mgr.Subscribe(r.handleFrame)
	return r
}

// Close releases the fan-out subscription. Safe to call more than once.
func (r *Rooms) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Create sends a create_room request.
func (r *Rooms) Create(room types.Room) {
	r.mgr.Send(types.ActionCreateRoom, room)
}

// FetchByDate requests the room list for a date.
func (r *Rooms) FetchByDate(date string) {
	r.mgr.Send(types.ActionGetRoomsByDate, types.GetRoomsByDatePayload{Date: date})
}

// UpdateStatus requests a room status change.
func (r *Rooms) UpdateStatus(roomID, status string) {
	r.mgr.Send(types.ActionUpdateRoomStatus, types.UpdateRoomStatusPayload{RoomID: roomID, Status: status})
}

func (r *Rooms) handleFrame(f types.Frame) {
	switch f.Action {
	case types.ActionCreateRoomResponse:
		r.handleCreateResponse(f.Data)
	case types.ActionGetRoomsByDateResponse:
		r.handleRoomsByDate(f.Data)
	case types.ActionUpdateRoomStatusResponse:
		r.handleStatusResponse(f.Data)
	default:
	}
}

func (r *Rooms) handleCreateResponse(data json.RawMessage) {
	var resp types.RoomResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		r.logger.Warn().Err(err).Msg("malformed room response")
		return
	}
	if !resp.Success {
		r.notifier.Notify(NoticeError, "Room creation failed", resp.Message)
		return
	}

	r.mu.Lock()
	r.rooms = append(r.rooms, resp.Room)
	r.mu.Unlock()

	r.notifier.Notify(NoticeSuccess, "Room created", resp.Message)
}

func (r *Rooms) handleRoomsByDate(data json.RawMessage) {
	var p types.RoomsByDatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.logger.Warn().Err(err).Msg("malformed rooms payload")
		return
	}
	r.mu.Lock()
	r.rooms = p.Rooms
	r.mu.Unlock()
}

func (r *Rooms) handleStatusResponse(data json.RawMessage) {
	var resp types.RoomResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		r.logger.Warn().Err(err).Msg("malformed room response")
		return
	}
	if !resp.Success {
		r.notifier.Notify(NoticeError, "Room update failed", resp.Message)
		return
	}

	r.mu.Lock()
	for i := range r.rooms {
		if r.rooms[i].RoomID == resp.Room.RoomID {
			r.rooms[i] = resp.Room
			break
		}
	}
	r.mu.Unlock()

	r.notifier.Notify(NoticeSuccess, "Room updated", resp.Message)
}

// List returns a snapshot of the room list.
func (r *Rooms) List() []types.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Room, len(r.rooms))
	copy(out, r.rooms)
	return out
}
