package hub

import (
	"time"

	"github.com/teslashibe/go-vocalix/pkg/assembler"
	"github.com/teslashibe/go-vocalix/pkg/relay"
	"github.com/teslashibe/go-vocalix/pkg/turn"
)

// Event types sent to monitors.
const (
	EventSessionOpened = "session_opened"
	EventSessionClosed = "session_closed"
	EventTurn          = "turn"
	EventReply         = "reply"
	EventAudio         = "audio"
)

// Event is one monitor message. Transcripts are not included.
type Event struct {
	Type      string  `json:"type"`
	Session   string  `json:"session"`
	Turn      int     `json:"turn,omitempty"`
	Kind      string  `json:"kind,omitempty"`
	Outcome   string  `json:"outcome,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Fallback  bool    `json:"fallback,omitempty"`
	Bytes     int     `json:"bytes,omitempty"`
	ElapsedMs int64   `json:"elapsed_ms,omitempty"`
	Turns     int     `json:"turns,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Time      int64   `json:"time"`
}

// Monitor publishes relay events on a hub.
type Monitor struct {
	hub *Hub
	now func() time.Time
}

// NewMonitor creates a Monitor that broadcasts on h.
func NewMonitor(h *Hub) *Monitor {
	return &Monitor{hub: h, now: time.Now}
}

func (m *Monitor) publish(e Event) {
	e.Time = m.now().UnixMilli()
	_ = m.hub.BroadcastJSON(e)
}

// SessionOpened implements relay.Observer.
func (m *Monitor) SessionOpened(info relay.Info) {
	m.publish(Event{Type: EventSessionOpened, Session: info.ID})
}

// SessionClosed implements relay.Observer.
func (m *Monitor) SessionClosed(info relay.Info) {
	m.publish(Event{
		Type:     EventSessionClosed,
		Session:  info.ID,
		Turns:    info.Turns,
		Duration: m.now().Sub(info.Connected).Seconds(),
	})
}

// TurnClassified implements relay.Observer. Partial transcripts are not
// published.
func (m *Monitor) TurnClassified(session string, d turn.Decision) {
	if d.Kind == turn.Partial {
		return
	}
	m.publish(Event{Type: EventTurn, Session: session, Turn: d.Turn.Seq, Kind: d.Kind.String()})
}

// ReplyFinished implements relay.Observer.
func (m *Monitor) ReplyFinished(session string, seq int, outcome relay.Outcome, elapsed time.Duration) {
	m.publish(Event{
		Type:      EventReply,
		Session:   session,
		Turn:      seq,
		Outcome:   string(outcome),
		ElapsedMs: elapsed.Milliseconds(),
	})
}

// AudioFinished implements relay.Observer.
func (m *Monitor) AudioFinished(session string, res assembler.Result) {
	m.publish(Event{
		Type:      EventAudio,
		Session:   session,
		Turn:      res.Turn,
		Reason:    string(res.Reason),
		Fallback:  res.Fallback,
		Bytes:     res.AudioBytes,
		ElapsedMs: res.Duration.Milliseconds(),
	})
}

var _ relay.Observer = (*Monitor)(nil)
