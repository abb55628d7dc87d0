package relay

import (
	"time"

	"github.com/teslashibe/go-vocalix/pkg/assembler"
	"github.com/teslashibe/go-vocalix/pkg/turn"
)

// Outcome is how a turn's reply ended.
type Outcome string

const (
	OutcomeReplied   Outcome = "replied"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Observer receives session and turn events. Calls are made from
// recognizer and worker goroutines and must not block.
type Observer interface {
	SessionOpened(info Info)
	SessionClosed(info Info)
	TurnClassified(session string, d turn.Decision)
	ReplyFinished(session string, seq int, outcome Outcome, elapsed time.Duration)
	AudioFinished(session string, res assembler.Result)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) SessionOpened(info Info) {
	for _, obs := range o {
		obs.SessionOpened(info)
	}
}

func (o Observers) SessionClosed(info Info) {
	for _, obs := range o {
		obs.SessionClosed(info)
	}
}

func (o Observers) TurnClassified(session string, d turn.Decision) {
	for _, obs := range o {
		obs.TurnClassified(session, d)
	}
}

func (o Observers) ReplyFinished(session string, seq int, outcome Outcome, elapsed time.Duration) {
	for _, obs := range o {
		obs.ReplyFinished(session, seq, outcome, elapsed)
	}
}

func (o Observers) AudioFinished(session string, res assembler.Result) {
	for _, obs := range o {
		obs.AudioFinished(session, res)
	}
}
