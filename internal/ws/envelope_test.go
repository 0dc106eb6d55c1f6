package ws

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcoffee-chat/internal/models"
)

func TestDecodeInboundTypes(t *testing.T) {
	env, err := DecodeInbound([]byte(`{"type":"connect","userId":"u1","role":"admin"}`))
	require.NoError(t, err)
	connect, ok := env.(*ConnectEnvelope)
	require.True(t, ok)
	assert.Equal(t, models.RoleAdmin, connect.Role)

	env, err = DecodeInbound([]byte(`{"tipo":"send_message","userId":"u1","chatCategory":"support","body":"hola","ticketId":"6f1c2a4e-8d3b-4c6a-9e2f-1a2b3c4d5e6f",
		"attachments":[{"urlCloudinary":"https://x/a.png","public_id":"p1","tipo":"imagen","tamaño":12}]}`))
	require.NoError(t, err)
	msg := env.(*SendMessageEnvelope)
	require.NotNil(t, msg.TicketID)
	assert.Equal(t, "6f1c2a4e-8d3b-4c6a-9e2f-1a2b3c4d5e6f", *msg.TicketID)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, models.KindImage, msg.Attachments[0].Kind)
	assert.Equal(t, int64(12), msg.Attachments[0].Size)

	env, err = DecodeInbound([]byte(`{"type":"request_active_conversations"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeActiveConversations, env.EnvelopeType())
}

func TestDecodeInboundErrors(t *testing.T) {
	cases := map[string]string{
		`{`:                                "malformed envelope",
		`{"userId":"u1"}`:                  "envelope type is required",
		`{"type":"hack"}`:                  "unknown envelope type: hack",
		`{"type":"connect","userId":"u1"}`: "connect requires role",
		`{"type":"create_ticket"}`:         "create_ticket requires description, title, userId",
		`{"type":"connect","userId":"u1","role":"root"}`:                                     "connect has invalid role",
		`{"type":"request_history","userId":"u1","chatCategory":"billing"}`:                  "request_history has invalid chatCategory",
		`{"type":"connect","userId":42,"role":"admin"}`:                                      "malformed connect envelope",
		`{"type":"request_history","userId":"u1","chatCategory":"support","ticketId":"abc"}`: "request_history has invalid ticketId",
		`{"type":"mark_read","userId":"u1","chatCategory":"support","ticketId":"abc"}`:       "mark_read has invalid ticketId",
	}
	for frame, want := range cases {
		_, err := DecodeInbound([]byte(frame))
		var perr *ProtocolError
		require.True(t, errors.As(err, &perr), frame)
		assert.Contains(t, perr.Message, want, frame)
	}
}

func TestOutboundEnvelopeShape(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("x", 3600))
	data, err := json.Marshal(MessageAck{Header: header(TypeMessageAck, at), Success: true, MessageID: "m1"})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "message_ack", out["type"])
	assert.Equal(t, "2024-03-01T08:00:00Z", out["timestamp"])
	assert.Equal(t, "m1", out["messageId"])
}
