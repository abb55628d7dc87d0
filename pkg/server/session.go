package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-vocalix/pkg/protocol"
	"github.com/teslashibe/go-vocalix/pkg/relay"
)

const configureCloseText = "First message must be API key configuration."

// handleSession runs one client voice session. The first message must
// configure the provider keys; binary frames after that are audio.
func (s *Server) handleSession(c *websocket.Conn) {
	remote := c.RemoteAddr().String()
	logger := s.logger.With("remote", remote)

	_ = c.SetReadDeadline(time.Now().Add(s.cfg.ConfigureWait))
	_, data, err := c.ReadMessage()
	if err != nil {
		logger.Debug("client left before configuring", "error", err)
		return
	}
	msg, err := protocol.ParseConfigureKeys(data)
	if err != nil {
		logger.Warn("rejected connection", "error", err)
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, configureCloseText),
			time.Now().Add(time.Second))
		return
	}
	_ = c.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	sess, err := s.cfg.Relay.Open(ctx, c, msg.Keys)
	if err != nil {
		logger.Warn("session not opened", "error", err)
		return
	}
	logger = logger.With("session", sess.ID())

	var g errgroup.Group
	g.Go(func() error {
		defer sess.Close()
		return pumpAudio(c, sess)
	})
	g.Go(func() error {
		<-sess.Done()
		// Unblock the pump when the session ends on the server side.
		_ = c.SetReadDeadline(time.Now())
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Debug("client read ended", "error", err)
	}
	sess.Wait()
	logger.Info("client disconnected")
}

// pumpAudio forwards binary frames until the client goes away.
func pumpAudio(c *websocket.Conn, sess *relay.Session) error {
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if err := sess.SendAudio(data); err != nil {
			if errors.Is(err, relay.ErrSessionClosed) {
				return nil
			}
			return err
		}
	}
}
