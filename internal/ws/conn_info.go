package ws

import (
	"time"

	"backcoffee-chat/internal/auth"
)

// ConnInfo describes an accepted websocket connection. Identity is set only
// when the client presented a valid token before the upgrade.
type ConnInfo struct {
	ConnID      string
	Identity    *auth.Identity
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) verifiedUserID() string {
	if i.Identity == nil {
		return ""
	}
	return i.Identity.UserID
}
