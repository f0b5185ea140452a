package web

import (
	"errors"
	"strings"
	"time"

	contribws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-distillo/pkg/history"
	"github.com/teslashibe/go-distillo/pkg/hub"
)

// handleStatus returns the workflow state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) status() Status {
	st := Status{
		Status:  s.workflow.Status(),
		Viewers: s.events.ClientCount(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.scale != nil {
		if w, ok := s.scale.LastWeight(); ok {
			st.Weight = &w
		}
	}
	return st
}

// handleHistory lists recorded mixes, newest first
func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.history == nil {
		return c.JSON([]*history.Session{})
	}
	list, err := s.history.List()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if limit := c.QueryInt("limit", 0); limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return c.JSON(list)
}

// handleHistoryEntry returns one recorded mix
func (s *Server) handleHistoryEntry(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.ErrNotFound
	}
	sess, err := s.history.Get(c.Params("id"))
	if errors.Is(err, history.ErrNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(sess)
}

// handleEvents returns recent workflow events
func (s *Server) handleEvents(c *fiber.Ctx) error {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	return c.JSON(s.recent)
}

// handleEventsWS streams workflow events. A status snapshot is sent first.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	if data, err := hub.Encode("status", s.status()); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	client := hub.NewClient(s.events, conn)
	if client == nil {
		return
	}
	client.Run()
}

// consoleReply answers each console message.
type consoleReply struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// handleConsoleWS treats every text message as a recognized sentence.
func (s *Server) handleConsoleWS(conn *contribws.Conn) {
	s.logger.Info("console attached", "remote", conn.RemoteAddr().String())
	defer s.logger.Info("console detached")

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != contribws.TextMessage {
			continue
		}

		text := strings.TrimSpace(string(data))
		reply := consoleReply{Accepted: true}
		if text == "" {
			reply = consoleReply{Error: "empty message"}
		} else if err := s.workflow.HandleSentence(text); err != nil {
			reply = consoleReply{Error: err.Error()}
		} else {
			s.logger.Debug("console sentence", "text", text)
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}
