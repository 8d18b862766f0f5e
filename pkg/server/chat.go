package server

import (
	"fmt"

	"github.com/decred/slog"

	"github.com/vctt94/heistparty/pkg/heist"
)

// Announcer is the chat port: game-event announcements pushed to whatever
// chat system fronts the rooms. Fire-and-forget, never blocks gameplay.
type Announcer interface {
	Announce(roomID, message string)
}

// LogAnnouncer writes announcements to the server log. Used when no chat
// backend is configured.
type LogAnnouncer struct {
	Log slog.Logger
}

// Announce implements Announcer.
func (a LogAnnouncer) Announce(roomID, message string) {
	if a.Log != nil {
		a.Log.Infof("[%s] %s", roomID, message)
	}
}

// announcementFor renders the chat line for an event, or "" when the event
// has no announcement.
func announcementFor(event heist.RoomEvent) string {
	switch event.Type {
	case heist.RoomEventPlayerJoined:
		return fmt.Sprintf("%s joined the crew", presenceName(event))
	case heist.RoomEventPlayerLeft:
		return fmt.Sprintf("%s left the crew", presenceName(event))
	case heist.RoomEventGameStarted:
		return "the heist begins"
	case heist.RoomEventHeistStarted:
		return "a new heist begins"
	case heist.RoomEventShowdown:
		if result, ok := event.Payload.(*heist.ShowdownResult); ok {
			switch result.Outcome {
			case heist.OutcomeVault:
				return "vault cracked!"
			case heist.OutcomeRetry:
				return "the getaway driver bought the crew another shot"
			default:
				return "alarm raised!"
			}
		}
	case heist.RoomEventGameEnded:
		if payload, ok := event.Payload.(*heist.GameEndedPayload); ok {
			if payload.Won {
				return "the crew pulled it off"
			}
			return "the heist failed: " + payload.Reason
		}
	}
	return ""
}

// presenceName returns the display name carried on a join/leave event,
// falling back to the player id for events without one.
func presenceName(event heist.RoomEvent) string {
	if payload, ok := event.Payload.(*heist.PresencePayload); ok && payload.Username != "" {
		return payload.Username
	}
	return event.PlayerID
}
