package timeline

import (
	"regexp"
	"strconv"
	"time"

	"github.com/embedchat/widget-gateway/internal/model"
)

// datePattern matches the content of backend-stored date-marker rows.
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Normalize maps a raw backend record into a timeline entry. All shape
// guessing lives here: date-marker detection, conversation field aliasing,
// and timestamp fallback. now is used only when the record carries no
// parsable timestamp; a message is never dropped for a bad date.
func Normalize(msg model.Message, now time.Time) Entry {
	conversationUUID := msg.ConversationUUID
	if conversationUUID == "" {
		conversationUUID = msg.ConversationID
	}

	timestamp := msg.CreatedAt.Time

	if datePattern.MatchString(msg.MessageContent) {
		if timestamp.IsZero() {
			if parsed, err := time.ParseInLocation("2006-01-02", msg.MessageContent, now.Location()); err == nil {
				timestamp = parsed
			} else {
				timestamp = now
			}
		}
		return Entry{
			ID:               entryID(msg, "date-"+msg.MessageContent),
			RemoteID:         msg.ID,
			ConversationUUID: conversationUUID,
			Sender:           model.SenderDate,
			Engine:           msg.Engine,
			MessageType:      model.TypeDate,
			Text:             msg.MessageContent,
			Timestamp:        timestamp,
			IsSuccessful:     msg.IsSuccessful,
		}
	}

	if timestamp.IsZero() {
		timestamp = now
	}

	messageType := msg.MessageType
	if messageType == "" {
		messageType = model.TypeText
	}

	return Entry{
		ID:               entryID(msg, ""),
		RemoteID:         msg.ID,
		ConversationUUID: conversationUUID,
		Sender:           msg.Sender,
		Engine:           msg.Engine,
		MessageType:      messageType,
		Text:             msg.MessageContent,
		Timestamp:        timestamp,
		IsSuccessful:     msg.IsSuccessful,
	}
}

func entryID(msg model.Message, fallback string) string {
	if msg.ID > 0 {
		return strconv.FormatInt(msg.ID, 10)
	}
	return fallback
}

// localDate renders t as the widget's YYYY-MM-DD calendar date.
func localDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// dateMarker synthesizes the calendar-day marker for the given day,
// timestamped at local midnight so it sorts before the day's messages.
func dateMarker(conversationUUID string, day time.Time) Entry {
	date := localDate(day)
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Entry{
		ID:               "date-" + date,
		ConversationUUID: conversationUUID,
		Sender:           model.SenderDate,
		Engine:           model.SenderSystem,
		MessageType:      model.TypeDate,
		Text:             date,
		Timestamp:        midnight,
		IsSuccessful:     boolPtr(true),
	}
}
