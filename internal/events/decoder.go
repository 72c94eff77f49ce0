package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Payload sources as reported in the Streamlabs "for" field
const (
	SourceStreamlabs = "streamlabs"
	SourceTwitch     = "twitch_account"
)

var (
	// ErrMalformed is returned for payloads that are not a well-formed event
	ErrMalformed = errors.New("malformed payload")
	// ErrInvalidAmount matches any *InvalidAmountError
	ErrInvalidAmount = errors.New("invalid amount")
)

// InvalidAmountError carries the amount string that failed to parse
type InvalidAmountError struct {
	Value string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %q", e.Value)
}

// Is lets errors.Is(err, ErrInvalidAmount) match
func (e *InvalidAmountError) Is(target error) bool {
	return target == ErrInvalidAmount
}

type payload struct {
	Type    string          `json:"type"`
	For     string          `json:"for"`
	EventID string          `json:"event_id"`
	Message json.RawMessage `json:"message"`
}

type message struct {
	ID     string      `json:"_id"`
	AltID  flexString  `json:"id"`
	Name   string      `json:"name"`
	Amount *flexString `json:"amount"`
}

// flexString accepts both JSON strings and numbers.
// Streamlabs sends donation amounts as strings and bit amounts as either.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Decode parses a raw payload into an Event.
// Payloads with an unrecognized (type, for) pair decode to KindUnknown with a
// nil error; callers are expected to drop them.
func Decode(raw []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	kind := classify(p.Type, p.For)
	if kind == KindUnknown {
		return Event{Kind: KindUnknown, RawID: p.EventID}, nil
	}

	msg, err := firstMessage(p.Message)
	if err != nil {
		return Event{}, err
	}

	ev := Event{
		Kind:   kind,
		Source: msg.Name,
		RawID:  rawID(msg, p.EventID),
	}

	if kind.HasAmount() {
		if msg.Amount == nil {
			return Event{}, fmt.Errorf("%w: %s without amount", ErrMalformed, kind)
		}
		amount, err := parseAmount(string(*msg.Amount))
		if err != nil {
			return Event{}, err
		}
		ev.Amount = amount
	}

	return ev, nil
}

func classify(eventType, source string) Kind {
	switch eventType {
	case "donation":
		if source == "" || source == SourceStreamlabs {
			return KindDonation
		}
	case "follow":
		if source == SourceTwitch {
			return KindFollow
		}
	case "subscription":
		if source == SourceTwitch {
			return KindSubscription
		}
	case "bits":
		if source == SourceTwitch {
			return KindBits
		}
	}
	return KindUnknown
}

// firstMessage accepts both the array form and a bare object.
// Only the first entry of a batched push is used.
func firstMessage(raw json.RawMessage) (message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return message{}, fmt.Errorf("%w: missing message", ErrMalformed)
	}

	if trimmed[0] == '[' {
		var msgs []message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(msgs) == 0 {
			return message{}, fmt.Errorf("%w: empty message", ErrMalformed)
		}
		return msgs[0], nil
	}

	var msg message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, &InvalidAmountError{Value: s}
	}
	return v, nil
}

func rawID(msg message, eventID string) string {
	switch {
	case msg.ID != "":
		return msg.ID
	case msg.AltID != "":
		return string(msg.AltID)
	case eventID != "":
		return eventID
	default:
		return uuid.NewString()
	}
}
