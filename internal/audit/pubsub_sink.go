package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"cloud.google.com/go/pubsub"
)

// PubSubSink publishes audit records to a Google Cloud Pub/Sub topic. This
// is the production realization of spec §1's "audit persistence treated as
// an append-only sink" — the core writes, an external subscriber reads.
type PubSubSink struct {
	topic *pubsub.Topic
	source string
}

// NewPubSubSink wraps an already-resolved topic handle.
func NewPubSubSink(topic *pubsub.Topic, source string) *PubSubSink {
	if source == "" {
		source = "anpr-core"
	}
	return &PubSubSink{topic: topic, source: source}
}

// Publish marshals r as a CloudEvent and publishes it, blocking for the
// server ack. A failure is logged here and also returned; callers never
// propagate it to the primary request/response path.
func (s *PubSubSink) Publish(ctx context.Context, r Record) error {
	ce := wrap(s.source, r)
	payload, err := json.Marshal(ce)
	if err != nil {
		err = fmt.Errorf("audit: marshal cloudevent: %w", err)
		log.Printf("[AUDIT] %s %s/%s: %v", r.Action, r.EntityType, r.EntityID, err)
		return err
	}

	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"action":     string(r.Action),
			"entityType": r.EntityType,
		},
	})
	_, err = result.Get(ctx)
	if err != nil {
		err = fmt.Errorf("audit: publish to pubsub: %w", err)
		log.Printf("[AUDIT] %s %s/%s: %v", r.Action, r.EntityType, r.EntityID, err)
		return err
	}
	return nil
}
