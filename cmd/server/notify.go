package main

import (
	"context"
	"log/slog"

	"aither-flow/internal/conductor"
	"aither-flow/internal/eventbus"
	"aither-flow/internal/platform"
)

const notifyTitle = "Aither Flow"

// notifyLoop shows a desktop notification whenever an agent finishes a turn
// or fails. It returns when ctx ends or the subscription closes.
func notifyLoop(ctx context.Context, sub *eventbus.Subscription, n platform.Notifier, logger *slog.Logger) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			ev, ok := msg.Payload.(conductor.Event)
			if !ok {
				continue
			}
			body, ok := notificationBody(ev)
			if !ok {
				continue
			}
			if err := n.Notify(notifyTitle, body); err != nil {
				logger.Debug("notification failed", "agent_id", ev.Agent(), "error", err)
			}
		}
	}
}

func notificationBody(ev conductor.Event) (string, bool) {
	switch e := ev.(type) {
	case conductor.TurnCompleteEvent:
		return "Agent " + e.AgentID + " is waiting for input", true
	case conductor.ErrorEvent:
		return "Agent " + e.AgentID + ": " + e.Message, true
	}
	return "", false
}
