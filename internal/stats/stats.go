package stats

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// StatsCollector keeps adapter-wide counters
type StatsCollector struct {
	StartTime        time.Time
	MessagesReceived uint64
	MessagesDecoded  uint64
	MessagesDropped  uint64
	Notifications    uint64
	Errors           uint64

	lastUpdate time.Time
	mu         sync.RWMutex
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	now := time.Now()
	return &StatsCollector{
		StartTime:  now,
		lastUpdate: now,
	}
}

func (s *StatsCollector) IncReceived()              { atomic.AddUint64(&s.MessagesReceived, 1); s.touch() }
func (s *StatsCollector) IncDecoded()               { atomic.AddUint64(&s.MessagesDecoded, 1); s.touch() }
func (s *StatsCollector) IncDropped()               { atomic.AddUint64(&s.MessagesDropped, 1); s.touch() }
func (s *StatsCollector) IncErrors()                { atomic.AddUint64(&s.Errors, 1); s.touch() }
func (s *StatsCollector) AddNotifications(n uint64) { atomic.AddUint64(&s.Notifications, n); s.touch() }

func (s *StatsCollector) touch() {
	s.mu.Lock()
	s.lastUpdate = time.Now()
	s.mu.Unlock()
}

// LastUpdate returns when a counter last changed
func (s *StatsCollector) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"uptime":            time.Since(s.StartTime).Round(time.Second).String(),
		"messages_received": atomic.LoadUint64(&s.MessagesReceived),
		"messages_decoded":  atomic.LoadUint64(&s.MessagesDecoded),
		"messages_dropped":  atomic.LoadUint64(&s.MessagesDropped),
		"notifications":     atomic.LoadUint64(&s.Notifications),
		"errors":            atomic.LoadUint64(&s.Errors),
		"rate":              s.CalculateRate(),
		"last_update":       s.LastUpdate(),
	}
}

// GetStatsJSON returns stats as JSON, with extra merged in at the top level
func (s *StatsCollector) GetStatsJSON(extra map[string]interface{}) ([]byte, error) {
	stats := s.GetStats()
	for k, v := range extra {
		stats[k] = v
	}
	return json.Marshal(stats)
}

// CalculateRate returns decoded messages per second since start
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.MessagesDecoded)) / uptime
}
