package gateway

import (
	"sync/atomic"

	"github.com/snarehq/snare/pkg/api"
)

// ConfigProvider hands out immutable admission-configuration snapshots.
// Snapshot must be cheap: it is called once per admission decision.
type ConfigProvider interface {
	Snapshot() *api.GatewayConfig
}

// ConfigHolder is the default ConfigProvider: updates swap in a whole new
// snapshot atomically, so a decision in flight reads either the old or the
// new configuration, never a mix.
type ConfigHolder struct {
	current atomic.Pointer[api.GatewayConfig]
}

func NewConfigHolder(cfg api.GatewayConfig) *ConfigHolder {
	h := &ConfigHolder{}
	h.current.Store(&cfg)
	return h
}

// Snapshot implements ConfigProvider.
func (h *ConfigHolder) Snapshot() *api.GatewayConfig {
	return h.current.Load()
}

// Update replaces the whole configuration.
func (h *ConfigHolder) Update(cfg api.GatewayConfig) {
	h.current.Store(&cfg)
}

// Modify applies fn to a copy of the current configuration and swaps the
// result in as the new snapshot.
func (h *ConfigHolder) Modify(fn func(*api.GatewayConfig)) {
	cfg := *h.current.Load()
	fn(&cfg)
	h.current.Store(&cfg)
}
