package impressions

import (
	"flagclient/models"
	"flagclient/telemetry"
)

// Listener receives every processed impression, regardless of what the
// strategy shipped.
type Listener interface {
	Log(imp models.Impression, attributes map[string]interface{})
}

// Manager runs the configured strategy and fans the annotated impressions
// out to the optional listener.
type Manager struct {
	listener Listener
	strategy Strategy
}

// NewManager composes a strategy with an optional listener (nil disables
// listener calls).
func NewManager(listener Listener, strategy Strategy) *Manager {
	return &Manager{listener: listener, strategy: strategy}
}

// ProcessImpressions runs the strategy and returns its upload list
// unchanged. The listener is invoked exactly once per input pair with the
// observer-annotated impression, even when nothing is shipped.
func (m *Manager) ProcessImpressions(imps []WithAttributes) []models.Impression {
	forListener, forPush := m.strategy.ProcessImpressions(imps)
	if m.listener != nil {
		for _, pair := range forListener {
			m.listener.Log(pair.Impression, pair.Attributes)
		}
	}
	telemetry.RecordImpressions(telemetry.ImpressionQueued, len(forPush))
	telemetry.RecordImpressions(telemetry.ImpressionDeduped, len(imps)-len(forPush))
	return forPush
}
