package types

// AIMemberID is the sentinel member identity that marks a conversation
// as paired with the automated counterpart.
const AIMemberID = "AI"

// Group is a conversation container. A group whose member set contains
// AIMemberID is an AI group; everything else is a peer group.
type Group struct {
	GroupID   string   `json:"groupId"`
	GroupName string   `json:"groupName"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt,omitempty"`
	UpdatedAt int64    `json:"updatedAt,omitempty"`
}

// IsAI reports whether the group's member set contains the AI sentinel.
func (g Group) IsAI() bool {
	for _, m := range g.Members {
		if m == AIMemberID {
			return true
		}
	}
	return false
}

// MessageID is the reconciled identity of a message. Confirmed is true
// once the server has assigned the id; an optimistic id comes from the
// sender's provisional tempMessageId.
type MessageID struct {
	Value     string
	Confirmed bool
}

// Message is a single chat message. MessageID is authoritative once
// present; TempMessageID is the provisional identity used for
// optimistic send and later reconciliation.
type Message struct {
	MessageID     string `json:"messageId,omitempty"`
	TempMessageID string `json:"tempMessageId,omitempty"`
	GroupID       string `json:"groupId"`
	SenderID      string `json:"senderId"`
	Content       string `json:"content"`
	MessageType   string `json:"messageType,omitempty"`
	SendAt        int64  `json:"sendAt,omitempty"`
	CreatedAt     int64  `json:"createdAt,omitempty"`
}

// Identity resolves the message's single identity: the server-assigned
// id when present, the optimistic temp id otherwise.
func (m Message) Identity() MessageID {
	if m.MessageID != "" {
		return MessageID{Value: m.MessageID, Confirmed: true}
	}
	return MessageID{Value: m.TempMessageID}
}

// Matches reports whether id equals either of the message's identity
// fields. Used as the belated duplicate check when a confirmed id
// arrives for a message already inserted optimistically.
func (m Message) Matches(id MessageID) bool {
	if id.Value == "" {
		return false
	}
	return m.MessageID == id.Value || m.TempMessageID == id.Value
}

// Appointment is a scheduled appointment event payload.
type Appointment struct {
	AppointmentID string `json:"appointmentId,omitempty"`
	PatientID     string `json:"patientId"`
	ProviderID    string `json:"providerId"`
	Date          string `json:"date"`
	TimeSlot      string `json:"timeSlot"`
	Reason        string `json:"reason,omitempty"`
	Status        string `json:"status,omitempty"`
}

// Room is a scheduled room/lifecycle event payload.
type Room struct {
	RoomID    string `json:"roomId,omitempty"`
	RoomName  string `json:"roomName"`
	Date      string `json:"date"`
	Status    string `json:"status,omitempty"`
	CreatedBy string `json:"createdBy,omitempty"`
}
