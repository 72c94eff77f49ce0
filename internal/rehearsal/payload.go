package rehearsal

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/dokzlo13/streamlights/internal/events"
)

type payloadMessage struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Amount string `json:"amount,omitempty"`
}

type payload struct {
	Type    string           `json:"type"`
	For     string           `json:"for"`
	Message []payloadMessage `json:"message"`
}

// buildPayload renders a Streamlabs alert the way the socket delivers it
func buildPayload(eventType, source, name string, amount *float64) []byte {
	msg := payloadMessage{
		ID:   "rehearsal-" + uuid.NewString(),
		Name: name,
	}
	if amount != nil {
		msg.Amount = strconv.FormatFloat(*amount, 'f', -1, 64)
	}

	raw, _ := json.Marshal(payload{
		Type:    eventType,
		For:     source,
		Message: []payloadMessage{msg},
	})
	return raw
}

func donationPayload(amount float64, name string) []byte {
	return buildPayload("donation", events.SourceStreamlabs, name, &amount)
}

func bitsPayload(amount float64, name string) []byte {
	return buildPayload("bits", events.SourceTwitch, name, &amount)
}

func followPayload(name string) []byte {
	return buildPayload("follow", events.SourceTwitch, name, nil)
}

func subscriptionPayload(name string) []byte {
	return buildPayload("subscription", events.SourceTwitch, name, nil)
}
