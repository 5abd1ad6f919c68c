package notify

import (
	"github.com/Charliesj0129/shijim/internal/sbe"
	"github.com/Charliesj0129/shijim/internal/shm"
	"github.com/Charliesj0129/shijim/internal/transport"
)

// StatsSnapshot bundles one point-in-time read of every stage's
// counters, for a downstream dashboard or ClickHouse sink to persist
// without reaching into the ingestor's internals directly.
type StatsSnapshot struct {
	TimestampNs uint64            `json:"timestamp_ns"`
	Transport   transport.Stats   `json:"transport"`
	Filter      sbe.FilterStats   `json:"filter"`
	Registry    sbe.RegistryStats `json:"registry"`
	Writer      shm.WriterStats   `json:"writer"`
}
