package router

import (
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// ErrInvalidMessage is returned when a stored message cannot be decoded.
var ErrInvalidMessage = errors.New("routed message is not valid")

// Message is what a standard-path queue stores. It is never modified after Send, so a
// dead-lettered message is byte-for-byte the message that was enqueued.
type Message struct {
	ID         string           `json:"id"`
	Event      eventstore.Event `json:"event"`
	EnqueuedAt time.Time        `json:"enqueuedAt"`
}

// NewMessage wraps a committed event. The event id doubles as message id, so resending the
// same event after a router restart does not create a second live message.
func NewMessage(event eventstore.Event, now time.Time) Message {
	return Message{ID: event.EventID, Event: event, EnqueuedAt: now.UTC()}
}

// Delivery is one receipt of a message. Attempt starts at 1.
type Delivery struct {
	Message    Message
	Receipt    string
	Attempt    int
	ReceivedAt time.Time
}

// DeadLetter is a message that exhausted its delivery attempts.
type DeadLetter struct {
	Message        Message   `json:"message"`
	Attempts       int       `json:"attempts"`
	DeadLetteredAt time.Time `json:"deadLetteredAt"`
}

func encodeMessage(msg Message) ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(msg)
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &msg); err != nil {
		return Message{}, errors.Join(ErrInvalidMessage, err)
	}

	return msg, nil
}

func encodeEvent(event eventstore.Event) ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
}

func decodeEvent(data []byte) (eventstore.Event, error) {
	var event eventstore.Event
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &event); err != nil {
		return eventstore.Event{}, errors.Join(ErrInvalidMessage, err)
	}

	return event, nil
}
