package session

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/carebridge/realtime/src/conn"
	"github.com/carebridge/realtime/src/types"
)

// Appointments is the appointment-event reducer: one fan-out
// subscription, a small list keyed by the response action, and terminal
// actions translated into user-facing notifications.
type Appointments struct {
	mgr      *conn.Manager
	notifier Notifier
	logger   zerolog.Logger

	mu           sync.RWMutex
	closed       bool
	unsub        func()
	appointments []types.Appointment
}

// NewAppointments builds the reducer and subscribes it to the fan-out.
func NewAppointments(mgr *conn.Manager, notifier Notifier, logger zerolog.Logger) *Appointments {
	a := &Appointments{
		mgr:      mgr,
		notifier: notifier,
		logger:   logger.With().Str("component", "appointments").Logger(),
	}
	if a.notifier == nil {
		a.notifier = LogNotifier{Logger: a.logger}
	}
	a.unsub = mgr.Subscribe(a.handleFrame)
	return a
}

// Close releases the fan-out subscription. Safe to call more than once.
func (a *Appointments) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	unsub := a.unsub
	a.unsub = nil
	a.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Schedule sends a schedule_appointment request.
func (a *Appointments) Schedule(appt types.Appointment) {
	a.mgr.Send(types.ActionScheduleAppointment, appt)
}

func (a *Appointments) handleFrame(f types.Frame) {
	switch f.Action {
	case types.ActionScheduleAppointmentResponse:
		a.handleResponse(f.Data)
	default:
	}
}

func (a *Appointments) handleResponse(data json.RawMessage) {
	var resp types.AppointmentResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		a.logger.Warn().Err(err).Msg("malformed appointment response")
		return
	}
	if !resp.Success {
		a.notifier.Notify(NoticeError, "Appointment failed", resp.Message)
		return
	}

	a.mu.Lock()
	a.appointments = append(a.appointments, resp.Appointment)
	a.mu.Unlock()

	a.notifier.Notify(NoticeSuccess, "Appointment scheduled", resp.Message)
}

// List returns a snapshot of the scheduled appointments.
func (a *Appointments) List() []types.Appointment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]types.Appointment, len(a.appointments))
	copy(out, a.appointments)
	return out
}
