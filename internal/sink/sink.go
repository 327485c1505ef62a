// Package sink delivers telemetry records. Every implementation is best
// effort: a failed Publish is reported to the caller and never retried.
package sink

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/banshee-data/plantconnect/internal/monitoring"
)

// Sink is what the telemetry streamer publishes to.
type Sink interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	Close() error
}

// Multi fans a record out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, topic, key string, payload any) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, topic, key, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Log writes each record through monitoring.Logf. It is the sink used when
// no transport is configured.
type Log struct{}

func (Log) Publish(_ context.Context, topic, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	monitoring.Logf("sink %s/%s: %s", key, topic, b)
	return nil
}

func (Log) Close() error { return nil }
