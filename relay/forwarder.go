package relay

import (
	"encoding/json"

	"github.com/CalvinMagezi/agent-hq-sub000/bus"
)

// subscribeBusHandlers wires the in-process change bus consumers: the
// job status broadcaster and the client-bound event forwarder.
func (g *Gateway) subscribeBusHandlers() {
	g.bus.Subscribe("relay.jobs", func(ev bus.Event) {
		switch ev.Kind {
		case bus.KindJobClaimed, bus.KindJobCompleted, bus.KindJobFailed:
			g.onJobEvent(ev)
		}
	})

	g.bus.Subscribe("relay.forwarder", g.forwardEvent)
}

// forwardEvent wraps a bus event as a system:event frame and fans it out
// to sessions whose patterns match. Per-socket failures stay local.
func (g *Gateway) forwardEvent(ev bus.Event) {
	g.registry.BroadcastEvent(ev.Kind, OutboundMessage{
		Type:  TypeSystemEvent,
		Event: ev.Kind,
		Data: map[string]any{
			"path":      ev.Path,
			"data":      ev.Data,
			"timestamp": ev.Timestamp.UTC().UnixMilli(),
		},
	})
}

// onBridgeEvent republishes harness-originated events on the change bus.
// trace.progress becomes trace:progress and reaches clients subscribed
// to it through the forwarder, and is also mirrored as a dedicated
// frame for trace-aware frontends.
func (g *Gateway) onBridgeEvent(event string, payload json.RawMessage) {
	if event != "trace.progress" {
		g.log.Debugw("Ignoring bridge event", "event", event)
		return
	}

	data := map[string]string{}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err == nil {
		for k, v := range decoded {
			if s, ok := v.(string); ok {
				data[k] = s
			}
		}
	}

	g.bus.Publish(bus.Event{Kind: TypeTraceProgress, Data: data})

	g.registry.BroadcastEvent(TypeTraceProgress, OutboundMessage{
		Type: TypeTraceProgress,
		Data: json.RawMessage(payload),
	})
}
