package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
)

const (
	pushTimeout  = 10 * time.Second
	pushAttempts = 5
)

// messageSource is the part of *kafka.Reader the forwarder needs.
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// eventSink pushes one raw session event.
type eventSink interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

type forwarder struct {
	src     messageSource
	sink    eventSink
	backoff func() retry.Backoff
	logger  zerolog.Logger
}

func newForwarder(src messageSource, sink eventSink, logger zerolog.Logger) *forwarder {
	return &forwarder{
		src:  src,
		sink: sink,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(pushAttempts-1, retry.NewExponential(200*time.Millisecond))
		},
		logger: logger,
	}
}

// run forwards events until ctx ends. An offset is committed once its event reached Loki or
// exhausted its retries, so a crash replays at most the in-flight message.
func (f *forwarder) run(ctx context.Context) error {
	for {
		msg, err := f.src.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.logger.Warn().Err(err).Msg("kafka fetch failed")
			continue
		}
		if err := f.push(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.logger.Error().Err(err).Int64("offset", msg.Offset).Int("partition", msg.Partition).Msg("dropping event after retries")
		}
		if err := f.src.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			f.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("kafka commit failed")
		}
	}
}

func (f *forwarder) push(ctx context.Context, msg kafka.Message) error {
	return retry.Do(ctx, f.backoff(), func(ctx context.Context) error {
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		defer cancel()
		if err := f.sink.PushEventJSON(pushCtx, msg.Value); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
