package devserver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/realtime/src/types"
)

func (s *Server) handleFrame(c *client, f types.Frame) {
	switch f.Action {
	case types.ActionAuthenticate:
		s.handleAuthenticate(c, f.Data)
	case types.ActionCreateGroup:
		s.handleCreateGroup(c, f.Data)
	case types.ActionDeleteGroup:
		s.handleDeleteGroup(c, f.Data)
	case types.ActionJoinGroup, types.ActionLeaveGroup:
		// Membership is fixed by the group's member set here.
	case types.ActionSendMessage:
		s.handleSendMessage(c, f.Data)
	case types.ActionGetMessages:
		s.handleGetMessages(c, f.Data)
	case types.ActionGetGroups:
		s.handleGetGroups(c, f.Data)
	case types.ActionScheduleAppointment:
		s.handleScheduleAppointment(c, f.Data)
	case types.ActionCreateRoom:
		s.handleCreateRoom(c, f.Data)
	case types.ActionGetRoomsByDate:
		s.handleGetRoomsByDate(c, f.Data)
	case types.ActionUpdateRoomStatus:
		s.handleUpdateRoomStatus(c, f.Data)
	default:
		s.logger.Debug().Str("action", string(f.Action)).Msg("unhandled action")
	}
}

func (s *Server) sendTo(c *client, action types.Action, data any) {
	env, err := types.NewEnvelope(action, data)
	if err != nil {
		s.logger.Error().Err(err).Str("action", string(action)).Msg("encode failed")
		return
	}
	if err := c.send(env); err != nil {
		s.logger.Debug().Err(err).Str("client_id", c.id).Msg("send failed")
	}
}

func (s *Server) sendError(c *client, text string) {
	s.sendTo(c, types.ActionError, types.ErrorPayload{Message: text})
}

// broadcastToGroup delivers to every connected client whose user is a
// member of the group.
func (s *Server) broadcastToGroup(g types.Group, action types.Action, data any) {
	members := make(map[string]struct{}, len(g.Members))
	for _, m := range g.Members {
		members[m] = struct{}{}
	}

	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if _, ok := members[c.userID]; ok {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		s.sendTo(c, action, data)
	}
}

func (s *Server) handleAuthenticate(c *client, data json.RawMessage) {
	var p types.AuthPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		s.sendError(c, "authenticate requires userId")
		return
	}
	s.mu.Lock()
	c.userID = p.UserID
	s.mu.Unlock()
	s.logger.Info().Str("client_id", c.id).Str("user_id", p.UserID).Msg("authenticated")
}

func memberKey(members []string) string {
	sorted := make([]string, len(members))
	copy(sorted, members)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

func (s *Server) handleCreateGroup(c *client, data json.RawMessage) {
	var p types.CreateGroupPayload
	if err := json.Unmarshal(data, &p); err != nil || len(p.Members) == 0 {
		s.sendError(c, "create_group requires members")
		return
	}

	key := memberKey(p.Members)
	s.mu.Lock()
	for _, gs := range s.groups {
		if memberKey(gs.group.Members) == key {
			s.mu.Unlock()
			s.sendError(c, "A group with these members already exists")
			return
		}
	}
	now := time.Now().UnixMilli()
	g := types.Group{
		GroupID:   uuid.New().String(),
		GroupName: p.GroupName,
		Members:   p.Members,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.groups[g.GroupID] = &groupState{group: g}
	s.mu.Unlock()

	s.broadcastToGroup(g, types.ActionGroupCreated, g)
}

func (s *Server) handleDeleteGroup(c *client, data json.RawMessage) {
	var p types.DeleteGroupPayload
	if err := json.Unmarshal(data, &p); err != nil || p.GroupID == "" {
		s.sendError(c, "delete_group requires groupId")
		return
	}

	s.mu.Lock()
	gs, ok := s.groups[p.GroupID]
	if ok {
		delete(s.groups, p.GroupID)
	}
	s.mu.Unlock()

	if !ok {
		s.sendError(c, fmt.Sprintf("group %s not found", p.GroupID))
		return
	}
	s.broadcastToGroup(gs.group, types.ActionGroupDeleted, types.GroupDeletedPayload{GroupID: p.GroupID})
}

func (s *Server) handleSendMessage(c *client, data json.RawMessage) {
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.GroupID == "" {
		s.sendError(c, "send_message requires groupId")
		return
	}
	msg.MessageID = uuid.New().String()
	msg.CreatedAt = time.Now().UnixMilli()

	s.mu.Lock()
	gs, ok := s.groups[msg.GroupID]
	if !ok {
		s.mu.Unlock()
		s.sendError(c, fmt.Sprintf("group %s not found", msg.GroupID))
		return
	}
	gs.messages = append([]types.Message{msg}, gs.messages...)
	g := gs.group
	isAI := g.IsAI()
	s.mu.Unlock()

	s.broadcastToGroup(g, types.ActionMessageReceived, msg)

	// Canned AI reply so the conversational flow can be exercised
	// without the real answer service.
	if isAI && msg.SenderID != types.AIMemberID {
		reply := types.Message{
			MessageID:   uuid.New().String(),
			GroupID:     g.GroupID,
			SenderID:    types.AIMemberID,
			Content:     "You said: " + msg.Content,
			MessageType: "text",
			CreatedAt:   time.Now().UnixMilli(),
		}
		s.mu.Lock()
		if gs, ok := s.groups[g.GroupID]; ok {
			gs.messages = append([]types.Message{reply}, gs.messages...)
		}
		s.mu.Unlock()
		s.broadcastToGroup(g, types.ActionMessageReceived, reply)
	}
}

func (s *Server) handleGetMessages(c *client, data json.RawMessage) {
	var p types.GetMessagesPayload
	if err := json.Unmarshal(data, &p); err != nil || p.GroupID == "" {
		s.sendError(c, "get_messages requires groupId")
		return
	}
	if p.PageSize <= 0 {
		p.PageSize = 50
	}

	s.mu.RLock()
	gs, ok := s.groups[p.GroupID]
	var page []types.Message
	if ok {
		start := p.Page * p.PageSize
		if start < len(gs.messages) {
			end := start + p.PageSize
			if end > len(gs.messages) {
				end = len(gs.messages)
			}
			page = make([]types.Message, end-start)
			copy(page, gs.messages[start:end])
		}
	}
	s.mu.RUnlock()

	if !ok {
		s.sendError(c, fmt.Sprintf("group %s not found", p.GroupID))
		return
	}
	s.sendTo(c, types.ActionMessages, types.MessagesPayload{GroupID: p.GroupID, Page: p.Page, Messages: page})
}

func (s *Server) handleGetGroups(c *client, data json.RawMessage) {
	var p types.AuthPayload
	_ = json.Unmarshal(data, &p)
	userID := p.UserID
	if userID == "" {
		userID = c.userID
	}

	s.mu.RLock()
	var groups []types.Group
	for _, gs := range s.groups {
		for _, m := range gs.group.Members {
			if m == userID {
				groups = append(groups, gs.group)
				break
			}
		}
	}
	s.mu.RUnlock()

	s.sendTo(c, types.ActionGroups, types.GroupsPayload{Groups: groups})
}

func (s *Server) handleScheduleAppointment(c *client, data json.RawMessage) {
	var appt types.Appointment
	if err := json.Unmarshal(data, &appt); err != nil || appt.Date == "" {
		s.sendTo(c, types.ActionScheduleAppointmentResponse, types.AppointmentResponse{
			Success: false,
			Message: "appointment requires a date",
		})
		return
	}
	appt.AppointmentID = uuid.New().String()
	appt.Status = "scheduled"
	s.sendTo(c, types.ActionScheduleAppointmentResponse, types.AppointmentResponse{
		Success:     true,
		Appointment: appt,
		Message:     "appointment scheduled",
	})
}

func (s *Server) handleCreateRoom(c *client, data json.RawMessage) {
	var room types.Room
	if err := json.Unmarshal(data, &room); err != nil || room.RoomName == "" {
		s.sendTo(c, types.ActionCreateRoomResponse, types.RoomResponse{
			Success: false,
			Message: "room requires a name",
		})
		return
	}
	room.RoomID = uuid.New().String()
	if room.Status == "" {
		room.Status = "open"
	}

	s.mu.Lock()
	s.rooms[room.RoomID] = room
	s.mu.Unlock()

	s.sendTo(c, types.ActionCreateRoomResponse, types.RoomResponse{
		Success: true,
		Room:    room,
		Message: "room created",
	})
}

func (s *Server) handleGetRoomsByDate(c *client, data json.RawMessage) {
	var p types.GetRoomsByDatePayload
	_ = json.Unmarshal(data, &p)

	s.mu.RLock()
	var rooms []types.Room
	for _, r := range s.rooms {
		if p.Date == "" || r.Date == p.Date {
			rooms = append(rooms, r)
		}
	}
	s.mu.RUnlock()

	s.sendTo(c, types.ActionGetRoomsByDateResponse, types.RoomsByDatePayload{Date: p.Date, Rooms: rooms})
}

func (s *Server) handleUpdateRoomStatus(c *client, data json.RawMessage) {
	var p types.UpdateRoomStatusPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" || p.Status == "" {
		s.sendTo(c, types.ActionUpdateRoomStatusResponse, types.RoomResponse{
			Success: false,
			Message: "update requires roomId and status",
		})
		return
	}

	s.mu.Lock()
	room, ok := s.rooms[p.RoomID]
	if ok {
		room.Status = p.Status
		s.rooms[p.RoomID] = room
	}
	s.mu.Unlock()

	if !ok {
		s.sendTo(c, types.ActionUpdateRoomStatusResponse, types.RoomResponse{
			Success: false,
			Message: fmt.Sprintf("room %s not found", p.RoomID),
		})
		return
	}
	s.sendTo(c, types.ActionUpdateRoomStatusResponse, types.RoomResponse{
		Success: true,
		Room:    room,
		Message: "room updated",
	})
}
