package server

import (
	"github.com/gofiber/fiber/v2"
)

type voiceLabels struct {
	Gender string `json:"gender"`
}

type voiceEntry struct {
	VoiceID string      `json:"voice_id"`
	Name    string      `json:"name"`
	Labels  voiceLabels `json:"labels"`
}

func (s *Server) handleVoices(c *fiber.Ctx) error {
	if s.cfg.Voices == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "voice catalog not configured"})
	}
	voices, err := s.cfg.Voices.List(c.UserContext())
	if err != nil {
		s.logger.Error("failed to fetch voices", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	out := make([]voiceEntry, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceEntry{
			VoiceID: v.VoiceID,
			Name:    v.Name,
			Labels:  voiceLabels{Gender: v.Gender},
		})
	}
	return c.JSON(fiber.Map{"voices": out})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":   "ok",
		"version":  s.cfg.Version,
		"sessions": s.cfg.Relay.Count(),
	}
	if s.cfg.Hub != nil {
		resp["monitors"] = s.cfg.Hub.ClientCount()
	}
	return c.JSON(resp)
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	sessions := s.cfg.Relay.Sessions()
	return c.JSON(fiber.Map{
		"sessions":  sessions,
		"count":     len(sessions),
		"admission": s.cfg.Relay.Admission(),
		"audio":     s.cfg.Relay.AudioStats(),
	})
}
