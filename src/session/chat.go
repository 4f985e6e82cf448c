package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/realtime/src/conn"
	"github.com/carebridge/realtime/src/store"
	"github.com/carebridge/realtime/src/types"
)

var (
	// ErrNotConnected is returned when an operation requires an open
	// connection.
	ErrNotConnected = errors.New("session: not connected")
	// ErrMissingField is returned when a client-side required field is
	// empty. The operation is refused without a network round-trip.
	ErrMissingField = errors.New("session: required field missing")
)

// benignDuplicateGroup is the server's idempotency signal for a
// create_group whose member set already exists. Matched
// case-insensitively as a substring.
const benignDuplicateGroup = "group with these members already exists"

// ChatOptions tunes the chat session.
type ChatOptions struct {
	PageSize      int           // history page size, default 50
	RecreateDelay time.Duration // debounce before AI-group self-heal, default 150ms
	NoticeTTL     time.Duration // transient notice lifetime, default 5s
	Notifier      Notifier
	Logger        zerolog.Logger
}

// Chat tracks the active conversation: message history with
// de-duplication, the group list, and the AI-group lifecycle
// (create-if-needed, force-new, auto-recreate on deletion).
//
// It registers exactly one subscriber with the connection manager at
// construction and releases it in Close. Inbound frames are observed in
// transport arrival order; the reducer owns the message list and the
// processed-id ledger exclusively.
type Chat struct {
	mgr      *conn.Manager
	store    store.GroupStore
	notifier Notifier
	logger   zerolog.Logger

	pageSize      int
	recreateDelay time.Duration
	noticeTTL     time.Duration

	mu               sync.RWMutex
	closed           bool
	unsub            func()
	userID           string
	activeGroupID    string
	activeIsAI       bool
	aiGroupID        string
	creationInFlight bool
	groups           []types.Group
	messages         []types.Message // most-recent-first
	processed        map[string]struct{}
	notice           string
	lastError        string
	noticeTimer      *time.Timer
	recreateTimer    *time.Timer
}

// NewChat builds a chat session on top of the connection manager and
// subscribes it to the fan-out. The persisted AI-group pointer, if any,
// is loaded so the session survives process restarts.
func NewChat(mgr *conn.Manager, st store.GroupStore, opts ChatOptions) *Chat {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.RecreateDelay <= 0 {
		opts.RecreateDelay = 150 * time.Millisecond
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = 5 * time.Second
	}
	c := &Chat{
		mgr:           mgr,
		store:         st,
		notifier:      opts.Notifier,
		logger:        opts.Logger.With().Str("component", "chat").Logger(),
		pageSize:      opts.PageSize,
		recreateDelay: opts.RecreateDelay,
		noticeTTL:     opts.NoticeTTL,
		processed:     make(map[string]struct{}),
	}
	if c.notifier == nil {
		c.notifier = LogNotifier{Logger: c.logger}
	}
	if id, err := st.Get(context.Background()); err != nil {
		c.logger.Warn().Err(err).Msg("ai group pointer load failed")
	} else {
		c.aiGroupID = id
	}
	c.unsub = mgr.Subscribe(c.handleFrame)
	return c
}

// Close releases the fan-out subscription and stops pending timers.
// Safe to call more than once.
func (c *Chat) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsub := c.unsub
	c.unsub = nil
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
	}
	if c.recreateTimer != nil {
		c.recreateTimer.Stop()
	}
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// SetUser records the session's user identity, used for joins, sends
// and the AI-group self-heal.
func (c *Chat) SetUser(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// SwitchToGroup makes groupID the open conversation. This is the single
// source of truth for the active group: it hard-resets the message list
// and the processed-id ledger, mirrors the AI-group pointer to the
// external store, joins the group and fetches page 0 of its history.
func (c *Chat) SwitchToGroup(ctx context.Context, groupID string) error {
	if c.mgr.State() != conn.StateConnected {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.messages = nil
	c.processed = make(map[string]struct{})
	isAI := false
	for _, g := range c.groups {
		if g.GroupID == groupID {
			isAI = g.IsAI()
			break
		}
	}
	c.activeGroupID = groupID
	c.activeIsAI = isAI
	if isAI {
		c.aiGroupID = groupID
	} else {
		c.aiGroupID = ""
	}
	userID := c.userID
	c.mu.Unlock()

	var storeErr error
	if isAI {
		storeErr = c.store.Set(ctx, groupID)
	} else {
		storeErr = c.store.Clear(ctx)
	}
	if storeErr != nil {
		c.logger.Warn().Err(storeErr).Str("group_id", groupID).Msg("ai group pointer write failed")
	}

	c.mgr.Send(types.ActionJoinGroup, types.JoinGroupPayload{GroupID: groupID, UserID: userID})
	c.mgr.Send(types.ActionGetMessages, types.GetMessagesPayload{GroupID: groupID, Page: 0, PageSize: c.pageSize})
	return nil
}

// CreateAIGroupIfNeeded requests creation of the user's AI group. It is
// a no-op when an AI group is already current or a creation is in
// flight, unless force is set. Force abandons the existing pointer
// (in-memory and in the store) before issuing a fresh create: an
// abandon-and-replace, not an update.
func (c *Chat) CreateAIGroupIfNeeded(ctx context.Context, userID, displayName string, force bool) error {
	if c.mgr.State() != conn.StateConnected {
		return ErrNotConnected
	}

	c.mu.Lock()
	if !force && (c.aiGroupID != "" || c.creationInFlight) {
		c.mu.Unlock()
		return nil
	}
	clearFirst := force && c.aiGroupID != ""
	if clearFirst {
		c.aiGroupID = ""
	}
	c.creationInFlight = true
	c.userID = userID
	c.mu.Unlock()

	if clearFirst {
		if err := c.store.Clear(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("ai group pointer clear failed")
		}
	}

	name := displayName
	if name == "" {
		name = "AI Assistant"
	}
	c.mgr.Send(types.ActionCreateGroup, types.CreateGroupPayload{
		GroupName: name,
		Members:   []string{userID, types.AIMemberID},
		UserID:    userID,
	})
	return nil
}

// SendMessage sends content to the active group, inserting it
// optimistically under a provisional id. The id is recorded in the
// ledger so the server echo reconciles instead of duplicating.
func (c *Chat) SendMessage(content string) error {
	c.mu.Lock()
	groupID, userID := c.activeGroupID, c.userID
	if groupID == "" || userID == "" {
		c.mu.Unlock()
		return ErrMissingField
	}
	msg := types.Message{
		TempMessageID: uuid.New().String(),
		GroupID:       groupID,
		SenderID:      userID,
		Content:       content,
		MessageType:   "text",
		SendAt:        time.Now().UnixMilli(),
	}
	c.processed[msg.TempMessageID] = struct{}{}
	c.messages = append([]types.Message{msg}, c.messages...)
	c.mu.Unlock()

	c.mgr.Send(types.ActionSendMessage, msg)
	return nil
}

// CreateGroup requests a peer group with the given members.
func (c *Chat) CreateGroup(name string, members []string) {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	c.mgr.Send(types.ActionCreateGroup, types.CreateGroupPayload{GroupName: name, Members: members, UserID: userID})
}

// DeleteGroup requests deletion of a group. Refused client-side, with
// no network round-trip, unless both the group id and the session user
// id are non-empty.
func (c *Chat) DeleteGroup(groupID string) error {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	if groupID == "" || userID == "" {
		return ErrMissingField
	}
	c.mgr.Send(types.ActionDeleteGroup, types.DeleteGroupPayload{GroupID: groupID, UserID: userID})
	return nil
}

// LeaveGroup requests leaving a group.
func (c *Chat) LeaveGroup(groupID string) {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	c.mgr.Send(types.ActionLeaveGroup, types.JoinGroupPayload{GroupID: groupID, UserID: userID})
}

// RequestGroups asks the server for the user's group list.
func (c *Chat) RequestGroups() {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	c.mgr.Send(types.ActionGetGroups, types.AuthPayload{UserID: userID})
}

func (c *Chat) handleFrame(f types.Frame) {
	switch f.Action {
	case types.ActionMessageReceived:
		c.handleMessageReceived(f.Data)
	case types.ActionMessages:
		c.handleMessages(f.Data)
	case types.ActionGroups:
		c.handleGroups(f.Data)
	case types.ActionGroupCreated:
		c.handleGroupCreated(f.Data)
	case types.ActionGroupDeleted:
		c.handleGroupDeleted(f.Data)
	case types.ActionError:
		c.handleError(f.Data)
	default:
		c.logger.Debug().Str("action", string(f.Action)).Msg("action not for chat, ignoring")
	}
}

// handleMessageReceived inserts a live message unless its identity is
// already in the ledger. A belated check against the list, matching
// either identity field, is the second line of defense: it reconciles a
// confirmed id onto an optimistically inserted entry.
func (c *Chat) handleMessageReceived(data json.RawMessage) {
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("malformed message payload")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := msg.Identity()
	if id.Value != "" {
		if _, seen := c.processed[id.Value]; seen {
			return
		}
		c.processed[id.Value] = struct{}{}
	}

	for i := range c.messages {
		if c.messages[i].Matches(types.MessageID{Value: msg.MessageID}) ||
			c.messages[i].Matches(types.MessageID{Value: msg.TempMessageID}) {
			if c.messages[i].MessageID == "" && msg.MessageID != "" {
				c.messages[i].MessageID = msg.MessageID
			}
			return
		}
	}

	c.messages = append([]types.Message{msg}, c.messages...)
}

// handleMessages replaces the message list wholesale with the returned
// page and rebuilds the ledger from it, so history and live delivery
// share one de-duplication ledger.
func (c *Chat) handleMessages(data json.RawMessage) {
	var page types.MessagesPayload
	if err := json.Unmarshal(data, &page); err != nil {
		c.logger.Warn().Err(err).Msg("malformed messages payload")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = page.Messages
	c.processed = make(map[string]struct{}, len(page.Messages))
	for _, m := range page.Messages {
		if id := m.Identity(); id.Value != "" {
			c.processed[id.Value] = struct{}{}
		}
	}
}

func (c *Chat) handleGroups(data json.RawMessage) {
	var p types.GroupsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn().Err(err).Msg("malformed groups payload")
		return
	}
	c.mu.Lock()
	c.groups = p.Groups
	c.mu.Unlock()
}

// handleGroupCreated appends the group to the list and, when the member
// set carries the AI sentinel, adopts it as the current AI group.
func (c *Chat) handleGroupCreated(data json.RawMessage) {
	var g types.Group
	if err := json.Unmarshal(data, &g); err != nil {
		c.logger.Warn().Err(err).Msg("malformed group payload")
		return
	}

	c.mu.Lock()
	c.groups = append(c.groups, g)
	adopt := g.IsAI()
	if adopt {
		c.aiGroupID = g.GroupID
		c.creationInFlight = false
	}
	c.mu.Unlock()

	if adopt {
		if err := c.store.Set(context.Background(), g.GroupID); err != nil {
			c.logger.Warn().Err(err).Str("group_id", g.GroupID).Msg("ai group pointer write failed")
		}
		c.logger.Info().Str("group_id", g.GroupID).Msg("ai group adopted")
	}
}

// handleGroupDeleted removes the group and, when it was the current AI
// group, clears the pointer and schedules a non-forced recreation after
// a short debounce so it does not race the delete acknowledgment.
func (c *Chat) handleGroupDeleted(data json.RawMessage) {
	var p types.GroupDeletedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn().Err(err).Msg("malformed group_deleted payload")
		return
	}

	c.mu.Lock()
	for i, g := range c.groups {
		if g.GroupID == p.GroupID {
			c.groups = append(c.groups[:i], c.groups[i+1:]...)
			break
		}
	}
	wasAI := p.GroupID != "" && p.GroupID == c.aiGroupID
	if wasAI {
		c.aiGroupID = ""
		if c.recreateTimer != nil {
			c.recreateTimer.Stop()
		}
		c.recreateTimer = time.AfterFunc(c.recreateDelay, c.selfHeal)
	}
	c.mu.Unlock()

	if wasAI {
		if err := c.store.Clear(context.Background()); err != nil {
			c.logger.Warn().Err(err).Msg("ai group pointer clear failed")
		}
	}
}

func (c *Chat) selfHeal() {
	c.mu.RLock()
	userID := c.userID
	closed := c.closed
	c.mu.RUnlock()
	if closed || userID == "" || c.mgr.State() != conn.StateConnected {
		return
	}
	_ = c.CreateAIGroupIfNeeded(context.Background(), userID, "", false)
}

// handleError classifies a server-reported error. The duplicate-group
// idempotency signal becomes a transient informational notice; anything
// else is a hard error. Both clear the creation-in-flight flag.
func (c *Chat) handleError(data json.RawMessage) {
	var p types.ErrorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn().Err(err).Msg("malformed error payload")
		return
	}
	text := p.Text()

	c.mu.Lock()
	c.creationInFlight = false
	if strings.Contains(strings.ToLower(text), benignDuplicateGroup) {
		c.notice = text
		if c.noticeTimer != nil {
			c.noticeTimer.Stop()
		}
		c.noticeTimer = time.AfterFunc(c.noticeTTL, func() {
			c.mu.Lock()
			c.notice = ""
			c.mu.Unlock()
		})
		c.mu.Unlock()
		c.notifier.Notify(NoticeInfo, "Group already exists", text)
		return
	}
	c.lastError = text
	c.mu.Unlock()
	c.notifier.Notify(NoticeError, "Chat error", text)
}

// Messages returns a snapshot of the message list, most-recent-first.
// Callers needing chronological order reverse at the presentation
// boundary.
func (c *Chat) Messages() []types.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Groups returns a snapshot of the group list.
func (c *Chat) Groups() []types.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Group, len(c.groups))
	copy(out, c.groups)
	return out
}

// ActiveGroup returns the open conversation's id and whether it is the
// AI group. An empty id means no conversation is open.
func (c *Chat) ActiveGroup() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeGroupID, c.activeIsAI
}

// AIGroupID returns the current AI group pointer, "" when none.
func (c *Chat) AIGroupID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aiGroupID
}

// CreationInFlight reports whether an AI-group creation is pending.
func (c *Chat) CreationInFlight() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creationInFlight
}

// Notice returns the transient informational notice, "" when cleared.
func (c *Chat) Notice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notice
}

// LastError returns the most recent hard error text.
func (c *Chat) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}
