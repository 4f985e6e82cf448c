package types

// Request and response payload shapes for the actions this layer
// produces and consumes. Field names are part of the wire contract.

type AuthPayload struct {
	UserID string `json:"userId"`
}

type JoinGroupPayload struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId,omitempty"`
}

type CreateGroupPayload struct {
	GroupName string   `json:"groupName"`
	Members   []string `json:"members"`
	UserID    string   `json:"userId,omitempty"`
}

type DeleteGroupPayload struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

type GetMessagesPayload struct {
	GroupID  string `json:"groupId"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type GroupDeletedPayload struct {
	GroupID string `json:"groupId"`
}

// MessagesPayload is the page returned for a get_messages request.
type MessagesPayload struct {
	GroupID  string    `json:"groupId"`
	Page     int       `json:"page"`
	Messages []Message `json:"messages"`
}

type GroupsPayload struct {
	Groups []Group `json:"groups"`
}

// ErrorPayload is a server-reported domain error. Servers have been
// observed using either field name.
type ErrorPayload struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns whichever error field the server populated.
func (e ErrorPayload) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// AppointmentResponse is the terminal payload for schedule_appointment.
type AppointmentResponse struct {
	Success     bool        `json:"success"`
	Appointment Appointment `json:"appointment,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// RoomResponse is the terminal payload for create_room and
// update_room_status.
type RoomResponse struct {
	Success bool   `json:"success"`
	Room    Room   `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
}

type RoomsByDatePayload struct {
	Date  string `json:"date"`
	Rooms []Room `json:"rooms"`
}

type GetRoomsByDatePayload struct {
	Date string `json:"date"`
}

type UpdateRoomStatusPayload struct {
	RoomID string `json:"roomId"`
	Status string `json:"status"`
}
