package types

// Action names the wire-level message kind. The exact strings form the
// contract with the server and must not be altered.
type Action string

const (
	ActionAuthenticate Action = "authenticate"
	ActionJoinGroup    Action = "join_group"
	ActionLeaveGroup   Action = "leave_group"
	ActionCreateGroup  Action = "create_group"
	ActionSendMessage  Action = "send_message"
	ActionGetMessages  Action = "get_messages"
	ActionGetGroups    Action = "get_groups"
	ActionDeleteGroup  Action = "delete_group"

	ActionGroupCreated    Action = "group_created"
	ActionGroupDeleted    Action = "group_deleted"
	ActionMessages        Action = "messages"
	ActionGroups          Action = "groups"
	ActionMessageReceived Action = "message_received"
	ActionError           Action = "error"

	ActionScheduleAppointment         Action = "schedule_appointment"
	ActionScheduleAppointmentResponse Action = "schedule_appointment_response"

	ActionCreateRoom               Action = "create_room"
	ActionCreateRoomResponse       Action = "create_room_response"
	ActionGetRoomsByDate           Action = "get_rooms_by_date"
	ActionGetRoomsByDateResponse   Action = "get_rooms_by_date_response"
	ActionUpdateRoomStatus         Action = "update_room_status"
	ActionUpdateRoomStatusResponse Action = "update_room_status_response"

	// ActionUnknown marks a frame whose action could not be determined.
	// The raw payload is preserved so subscribers can still inspect it.
	ActionUnknown Action = ""
)
