package worker

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Codec is an interface for decoding broker messages into an Event.
type Codec interface {
	// Decode transforms a Watermill message into an Event.
	Decode(topic string, msg *message.Message) (*Event, error)
}

// DefaultCodec decodes the JSON decision payload published by the ingest
// service, falling back to message metadata for fields older publishers left
// out of the body.
type DefaultCodec struct{}

func (DefaultCodec) Decode(topic string, msg *message.Message) (*Event, error) {
	var decision Decision
	if err := json.Unmarshal(msg.Payload, &decision); err != nil {
		return nil, err
	}

	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}

	if decision.Provider == "" {
		decision.Provider = msg.Metadata.Get("provider")
	}
	if decision.Outcome == "" {
		decision.Outcome = msg.Metadata.Get("outcome")
	}
	if decision.RequestID == "" {
		decision.RequestID = msg.Metadata.Get("request_id")
	}
	if decision.ProviderPaymentID == "" {
		decision.ProviderPaymentID = msg.Metadata.Get("provider_payment_id")
	}

	return &Event{
		Topic:    topic,
		Metadata: metadata,
		Payload:  json.RawMessage(msg.Payload),
		Decision: decision,
	}, nil
}
