package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-vocalix/pkg/assembler"
	"github.com/teslashibe/go-vocalix/pkg/bridge"
	"github.com/teslashibe/go-vocalix/pkg/inference"
	"github.com/teslashibe/go-vocalix/pkg/protocol"
	"github.com/teslashibe/go-vocalix/pkg/turn"
)

// respond is the worker of one finalized turn. Workers of different turns
// run concurrently; audio of a later turn may reach the client first.
func (s *Session) respond(t turn.Turn) {
	defer s.workers.Done()

	start := time.Now()
	logger := s.logger.With("turn", t.Seq)
	outcome := s.reply(s.bridge.Context(), logger, t)

	logger.Info("turn finished", "outcome", outcome, "elapsed", time.Since(start))
	s.relay.cfg.Observer.ReplyFinished(s.id, t.Seq, outcome, time.Since(start))
}

func (s *Session) reply(ctx context.Context, logger *slog.Logger, t turn.Turn) Outcome {
	cfg := s.relay.cfg
	seq := t.Seq

	if !cfg.Gate.TryAdmit() {
		logger.Warn("reply quota exhausted", "admission", cfg.Gate.Stats())
		s.bridge.Send(protocol.NewLLMError(seq, QuotaMessage))
		return OutcomeRejected
	}
	s.bridge.Send(protocol.NewLLMStreamingStart(seq))

	if s.replier == nil {
		logger.Error("no reply generator", "error", s.replierErr)
		s.bridge.Send(protocol.NewLLMError(seq, ReplyErrorMessage))
		return OutcomeFailed
	}

	rctx, cancel := context.WithTimeout(ctx, cfg.ReplyTimeout)
	resp, err := s.replier.Reply(rctx, &inference.ReplyRequest{
		SessionID: s.id,
		Text:      t.Raw,
		History:   s.History(),
		Tools:     s.tools,
	})
	cancel()

	if ctx.Err() != nil {
		logger.Debug("session closed during reply, dropping result")
		return OutcomeAbandoned
	}
	if inference.IsRateLimited(err) {
		logger.Warn("reply provider quota exhausted", "error", err)
		s.bridge.Send(protocol.NewLLMError(seq, QuotaMessage))
		return OutcomeRejected
	}
	if err != nil {
		logger.Error("reply generation failed", "error", err)
		s.bridge.Send(protocol.NewLLMError(seq, ReplyErrorMessage))
		return OutcomeFailed
	}

	// History is kept before audio so the next turn sees this exchange
	// even if synthesis is slow.
	s.setHistory(resp.History)
	s.replies.Add(1)

	spoken, urls := SpokenText(resp.Text)
	for _, u := range urls {
		logger.Info("opening url", "url", u)
		s.bridge.Send(protocol.NewOpenURL(seq, u))
	}
	s.bridge.Send(protocol.NewLLMChunk(seq, spoken))

	s.speak(logger, seq, spoken)

	if ctx.Err() != nil {
		return OutcomeAbandoned
	}
	s.bridge.Send(protocol.NewLLMStreamingComplete(seq, resp.Text))
	return OutcomeReplied
}

// speak runs the turn's audio job on the bridge and waits for it within
// the await timeout.
func (s *Session) speak(logger *slog.Logger, seq int, text string) {
	cfg := s.relay.cfg
	job := cfg.Assembler.NewJob(seq, s.synth, s.bridge)

	h := s.bridge.Schedule(func(ctx context.Context) (any, error) {
		return job.Run(ctx, text)
	})

	v, err := h.Await(cfg.AwaitTimeout)
	switch {
	case err == nil:
		res, _ := v.(assembler.Result)
		cfg.Observer.AudioFinished(s.id, res)
	case errors.Is(err, bridge.ErrTimeout):
		logger.Warn("audio did not complete in time", "timeout", cfg.AwaitTimeout)
	case errors.Is(err, context.Canceled), errors.Is(err, bridge.ErrClosed):
		logger.Debug("audio abandoned", "error", err)
	default:
		logger.Warn("audio delivery failed", "error", err)
	}
}
