package watcher

import (
	"context"
	"errors"

	"angelbot/internal/bus"
	"angelbot/internal/domain"
)

// Run consumes gateway events until the channel is closed or ctx is done.
// Each event is handled on its own goroutine; Run returns only after every
// in-flight handler has finished.
func (w *Watcher) Run(ctx context.Context, events <-chan domain.Event) {
	defer w.wg.Wait()

	w.logger.Info("watcher started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return
		case ev, ok := <-events:
			if !ok {
				w.logger.Info("event stream closed")
				return
			}
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.Handle(ctx, ev)
			}()
		}
	}
}

// Handle runs the pipeline for one event. Errors are logged and the event is
// dropped; nothing is retried and nothing propagates to the caller.
func (w *Watcher) Handle(ctx context.Context, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event handler panic", "kind", ev.Kind(), "panic", r)
		}
	}()

	switch {
	case ev.Created != nil:
		msg := ev.Created.Message
		if err := w.Capture(ctx, *ev.Created); err != nil {
			w.logger.Error("capture failed",
				"message_id", msg.ID,
				"guild_id", msg.GuildID,
				"store", w.store.Path(),
				"err", err,
			)
			w.emit(bus.Event{Type: bus.EventPipelineError, MessageID: msg.ID, GuildID: msg.GuildID, Err: err})
		}

	case ev.Deleted != nil:
		del := ev.Deleted
		outcome, err := w.Relay(ctx, *del)
		if err == nil {
			return
		}
		w.logger.Error("relay failed",
			"message_id", del.ID,
			"guild_id", del.GuildID,
			"outcome", outcome.String(),
			"store", w.store.Path(),
			"err", err,
		)
		if !errors.Is(err, domain.ErrPlatform) {
			w.emit(bus.Event{Type: bus.EventPipelineError, MessageID: del.ID, GuildID: del.GuildID, Err: err})
		}
	}
}
