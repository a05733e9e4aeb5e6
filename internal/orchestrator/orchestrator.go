// Package orchestrator chains agents together through declarative
// topic-to-publish routes, so no agent ever calls another directly.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"vitaex/internal/agent"
	"vitaex/internal/audit"
	"vitaex/internal/bus"
	"vitaex/internal/platform/metrics"
)

// Outbound is one publish action produced by a route.
type Outbound struct {
	Topic     string
	EventType string
	Payload   map[string]any
}

// Plan returns the exact outbound publishes for an inbound event. It is a
// pure function of the event: routes branch on topic identity only and pass
// selected payload fields through as context.
func Plan(evt bus.Event) []Outbound {
	switch {
	case isStandardizedIngest(evt.Topic):
		return []Outbound{twinUpdate(evt), protocolRefresh(evt)}
	case evt.Topic == bus.TopicResearchImportCompleted:
		return []Outbound{{
			Topic:     bus.TopicGraphUpdated,
			EventType: "graph.updated",
			Payload:   map[string]any{"graph_version": evt.Payload["graph_version"]},
		}}
	case evt.Topic == bus.TopicSimulationCompleted:
		return []Outbound{protocolRefresh(evt)}
	case evt.Topic == bus.TopicProtocolReviewUpdated:
		// Terminal route, reserved for future hooks.
		return nil
	}
	return nil
}

// isStandardizedIngest matches the ingest.*.standardized topic family.
func isStandardizedIngest(topic string) bool {
	return strings.HasPrefix(topic, "ingest.") && strings.HasSuffix(topic, ".standardized")
}

func twinUpdate(evt bus.Event) Outbound {
	return Outbound{
		Topic:     bus.TopicTwinUpdateRequested,
		EventType: "twin.update",
		Payload: map[string]any{
			"reason":       "new_data",
			"source_topic": evt.Topic,
			"data_meta":    evt.Payload["meta"],
		},
	}
}

func protocolRefresh(evt bus.Event) Outbound {
	return Outbound{
		Topic:     bus.TopicProtocolGenerateRequested,
		EventType: "protocol.request",
		Payload: map[string]any{
			"reason":           "new_data_or_simulation",
			"source_topic":     evt.Topic,
			"user_context_ref": evt.Payload["user_context_ref"],
		},
	}
}

// SubscribeTopics lists the inbound topics the orchestrator observes.
func SubscribeTopics() []string {
	return []string{
		bus.TopicWearablesStandardized,
		bus.TopicLabsStandardized,
		bus.TopicQuestionnaireStandardized,
		bus.TopicResearchImportCompleted,
		bus.TopicSimulationCompleted,
		bus.TopicProtocolReviewUpdated,
	}
}

// Orchestrator executes the route table inside an agent runtime.
type Orchestrator struct {
	rt *agent.Runtime
}

// New builds the orchestrator agent. Consent stays at the default allow:
// routing carries no payload inspection beyond pass-through context fields.
func New(b bus.Bus, logger *log.Logger, m *metrics.Metrics, sink audit.Sink) *Orchestrator {
	o := &Orchestrator{}
	o.rt = agent.New(agent.Config{
		Name:            "orchestrator",
		Version:         "1.0.0",
		SubscribeTopics: SubscribeTopics(),
	}, b, o.handle, logger, agent.WithMetrics(m), agent.WithAudit(sink))
	return o
}

// Runtime exposes the underlying runtime for lifecycle management.
func (o *Orchestrator) Runtime() *agent.Runtime { return o.rt }

func (o *Orchestrator) handle(ctx context.Context, evt bus.Event) error {
	for _, action := range Plan(evt) {
		// Every route preserves the triggering event's user and correlation
		// ids so causal chains stay traceable across agents.
		if _, err := o.rt.Publish(ctx, action.Topic, action.EventType, action.Payload, evt.UserID, evt.CorrelationID); err != nil {
			return fmt.Errorf("route %s -> %s: %w", evt.Topic, action.Topic, err)
		}
	}
	return nil
}
