package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the daemon's metric instruments.
type Metrics struct {
	RequestDuration   metric.Float64Histogram
	CommandsHandled   metric.Int64Counter
	CommandErrors     metric.Int64Counter
	BridgeSent        metric.Int64Counter
	BridgeIngested    metric.Int64Counter
	BridgeRejected    metric.Int64Counter
	EvolutionTicks    metric.Int64Counter
	ConversationCount metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestDuration, err = meter.Float64Histogram("nova.request.duration",
		metric.WithDescription("Socket request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.CommandsHandled, err = meter.Int64Counter("nova.commands.handled",
		metric.WithDescription("Commands dispatched"),
	)
	if err != nil {
		return nil, err
	}

	m.CommandErrors, err = meter.Int64Counter("nova.commands.errors",
		metric.WithDescription("Commands that produced an error reply"),
	)
	if err != nil {
		return nil, err
	}

	m.BridgeSent, err = meter.Int64Counter("nova.bridge.sent",
		metric.WithDescription("Outbound bridge messages written"),
	)
	if err != nil {
		return nil, err
	}

	m.BridgeIngested, err = meter.Int64Counter("nova.bridge.ingested",
		metric.WithDescription("Inbound bridge messages ingested"),
	)
	if err != nil {
		return nil, err
	}

	m.BridgeRejected, err = meter.Int64Counter("nova.bridge.rejected",
		metric.WithDescription("Inbound bridge messages quarantined"),
	)
	if err != nil {
		return nil, err
	}

	m.EvolutionTicks, err = meter.Int64Counter("nova.evolution.ticks",
		metric.WithDescription("Evolution passes executed"),
	)
	if err != nil {
		return nil, err
	}

	m.ConversationCount, err = meter.Int64Counter("nova.conversations",
		metric.WithDescription("Conversations recorded"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
