package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameEnvelope(t *testing.T) {
	payload := []byte(`{"action":"message_received","data":{"messageId":"m1","groupId":"g1","senderId":"u1","content":"hi"}}`)

	f := DecodeFrame(payload)
	assert.Equal(t, ActionMessageReceived, f.Action)
	require.NotNil(t, f.Data)

	var msg Message
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	assert.Equal(t, "m1", msg.MessageID)
	assert.Equal(t, "hi", msg.Content)
}

func TestDecodeFrameBareString(t *testing.T) {
	// Legacy encoding: the whole payload is the action name.
	f := DecodeFrame([]byte(`"group_deleted"`))
	assert.Equal(t, ActionGroupDeleted, f.Action)
	assert.Nil(t, f.Data)
}

func TestDecodeFrameMalformedPassesThrough(t *testing.T) {
	raw := []byte("not json at all")
	f := DecodeFrame(raw)
	assert.Equal(t, ActionUnknown, f.Action)
	assert.Equal(t, raw, f.Raw)
}

func TestNewEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(ActionJoinGroup, JoinGroupPayload{GroupID: "g1", UserID: "u1"})
	require.NoError(t, err)

	payload, err := json.Marshal(env)
	require.NoError(t, err)

	f := DecodeFrame(payload)
	assert.Equal(t, ActionJoinGroup, f.Action)
	var p JoinGroupPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, "g1", p.GroupID)
}

func TestGroupIsAI(t *testing.T) {
	ai := Group{GroupID: "g1", Members: []string{"u1", AIMemberID}}
	peer := Group{GroupID: "g2", Members: []string{"u1", "u2"}}
	assert.True(t, ai.IsAI())
	assert.False(t, peer.IsAI())
}

func TestMessageIdentity(t *testing.T) {
	confirmed := Message{MessageID: "m1", TempMessageID: "t1"}
	optimistic := Message{TempMessageID: "t1"}

	id := confirmed.Identity()
	assert.Equal(t, "m1", id.Value)
	assert.True(t, id.Confirmed)

	id = optimistic.Identity()
	assert.Equal(t, "t1", id.Value)
	assert.False(t, id.Confirmed)

	assert.True(t, confirmed.Matches(MessageID{Value: "t1"}))
	assert.True(t, confirmed.Matches(MessageID{Value: "m1"}))
	assert.False(t, confirmed.Matches(MessageID{Value: ""}))
}
