// Package frame translates raw text frames to and from chat messages.
// The wire format has no envelope: chat lines travel as "sender: content"
// and server notices as free text.
package frame

import (
	"strings"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/src/types"
)

const (
	JoinedMarker = " has joined the chat"
	LeftMarker   = " has left the chat"

	chatSeparator = ": "
)

var (
	authOKMarkers     = []string{"authentication successful", "welcome"}
	authFailedMarkers = []string{"authentication failed", "invalid token"}
)

// EncodeAuth builds the handshake frame sent right after the socket opens.
func EncodeAuth(username, token string) []byte {
	return []byte(username + "," + token)
}

// EncodeChat builds an outbound chat frame.
func EncodeChat(content string) []byte {
	return []byte(strings.TrimSpace(content))
}

// Decode classifies an inbound frame. now becomes the message timestamp.
func Decode(raw []byte, now time.Time) types.Message {
	text := string(raw)
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, authOKMarkers):
		return system(text, types.EventAuthOK, now)
	case strings.Contains(text, JoinedMarker):
		return system(text, types.EventJoin, now)
	case strings.Contains(text, LeftMarker):
		return system(text, types.EventLeave, now)
	}

	if idx := strings.Index(text, chatSeparator); idx > 0 {
		return types.Message{
			Kind:      types.KindChat,
			Sender:    text[:idx],
			Content:   text[idx+len(chatSeparator):],
			Timestamp: now,
		}
	}
	return system(text, types.EventNone, now)
}

// DecodeHandshake decodes a frame received before the session settled. A
// frame carrying an auth-failure marker is a rejection, whatever its shape;
// everything else decodes as with Decode.
func DecodeHandshake(raw []byte, now time.Time) types.Message {
	if containsAny(strings.ToLower(string(raw)), authFailedMarkers) {
		return system(string(raw), types.EventAuthFailed, now)
	}
	return Decode(raw, now)
}

// JoinedUser extracts the username from a join notice.
func JoinedUser(content string) (string, bool) {
	return userBefore(content, JoinedMarker)
}

// LeftUser extracts the username from a leave notice.
func LeftUser(content string) (string, bool) {
	return userBefore(content, LeftMarker)
}

func userBefore(content, marker string) (string, bool) {
	name, _, found := strings.Cut(content, marker)
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return "", false
	}
	return name, true
}

func system(text string, event types.Event, now time.Time) types.Message {
	return types.Message{
		Kind:      types.KindSystem,
		Sender:    types.SystemSender,
		Content:   text,
		Timestamp: now,
		Event:     event,
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
