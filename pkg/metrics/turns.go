// Package metrics tracks turn latency and exports Prometheus counters.
package metrics

import (
	"sync"
	"time"
)

// Turn result labels.
const (
	ResultOK            = "ok"
	ResultNetworkFailed = "network_failed"
	ResultEmpty         = "empty"
)

// Turn tracks latency through one turn. All durations are measured from
// the moment recording stops.
type Turn struct {
	// Timestamps for key events
	SpeechEndTime    time.Time // mic tapped off
	ReplyTime        time.Time // backend answered
	ResponseDoneTime time.Time // reply finished playing

	// Computed latencies (from speech end)
	ExchangeLatency time.Duration
	TotalLatency    time.Duration

	RecordingLength time.Duration
	Via             string
	Result          string
}

// Collector collects latency for the current turn and keeps recent ones.
// It is goroutine-safe.
type Collector struct {
	mu      sync.Mutex
	current Turn
	history []Turn // recent turns for averaging
	reg     *Registry

	onUpdate func(Turn)
}

// NewCollector creates a collector. reg may be nil.
func NewCollector(reg *Registry) *Collector {
	return &Collector{
		history: make([]Turn, 0, 100),
		reg:     reg,
	}
}

// OnUpdate sets a callback that fires whenever a turn finishes.
func (c *Collector) OnUpdate(fn func(Turn)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// MarkSpeechEnd starts a new turn.
func (c *Collector) MarkSpeechEnd(recording time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = Turn{SpeechEndTime: time.Now(), RecordingLength: recording}
	if c.reg != nil && recording > 0 {
		c.reg.RecordRecording(recording)
	}
}

// MarkReply records the backend's answer.
func (c *Collector) MarkReply() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.ReplyTime = time.Now()
	if !c.current.SpeechEndTime.IsZero() {
		c.current.ExchangeLatency = c.current.ReplyTime.Sub(c.current.SpeechEndTime)
	}
}

// MarkFailed ends the turn without a reply.
func (c *Collector) MarkFailed(result string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Result = result
	c.archive()
}

// MarkResponseDone ends the turn once the reply has played.
func (c *Collector) MarkResponseDone(via string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.ResponseDoneTime = time.Now()
	if !c.current.SpeechEndTime.IsZero() {
		c.current.TotalLatency = c.current.ResponseDoneTime.Sub(c.current.SpeechEndTime)
	}
	c.current.Via = via
	c.current.Result = ResultOK
	c.archive()
}

// MarkMicDenied counts a refused microphone.
func (c *Collector) MarkMicDenied() {
	if c == nil || c.reg == nil {
		return
	}
	c.reg.RecordMicDenied()
}

// archive must be called with the mutex held.
func (c *Collector) archive() {
	c.history = append(c.history, c.current)
	if len(c.history) > 100 {
		c.history = c.history[1:]
	}
	if c.reg != nil {
		c.reg.RecordTurn(c.current.Result, c.current.TotalLatency)
	}
	if c.onUpdate != nil {
		turn := c.current
		go c.onUpdate(turn)
	}
}

// Current returns the current turn snapshot.
func (c *Collector) Current() Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Turns returns how many turns have been archived.
func (c *Collector) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Average returns average latencies over recent completed turns.
func (c *Collector) Average() Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	var avg Turn
	n := 0
	for _, h := range c.history {
		if h.Result != ResultOK {
			continue
		}
		avg.ExchangeLatency += h.ExchangeLatency
		avg.TotalLatency += h.TotalLatency
		avg.RecordingLength += h.RecordingLength
		n++
	}
	if n == 0 {
		return Turn{}
	}

	d := time.Duration(n)
	avg.ExchangeLatency /= d
	avg.TotalLatency /= d
	avg.RecordingLength /= d
	return avg
}

// FormatLatency returns a one-line latency summary.
func (t *Turn) FormatLatency() string {
	return formatDuration(t.RecordingLength) + " REC | " +
		formatDuration(t.ExchangeLatency) + " BACKEND | " +
		formatDuration(t.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
