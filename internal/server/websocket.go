package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/toolselector/internal/tools"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the server only listens on loopback
	},
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string         `json:"type"`
	Action  string         `json:"action,omitempty"`
	Names   []string       `json:"names,omitempty"`
	OK      bool           `json:"ok,omitempty"`
	Message string         `json:"message,omitempty"`
	Tools   []toolResponse `json:"tools,omitempty"`
}

func changeMessage(c tools.Change) wsOutgoing {
	return wsOutgoing{
		Type:    "changed",
		Action:  string(c.Action),
		Names:   c.Tools,
		OK:      c.OK,
		Message: c.Message,
	}
}

func (s *Server) snapshot() wsOutgoing {
	s.mu.Lock()
	all := s.registry.Tools()
	s.mu.Unlock()

	out := wsOutgoing{Type: "tools", Tools: make([]toolResponse, 0, len(all))}
	for _, t := range all {
		out.Tools = append(out.Tools, newToolResponse(t))
	}
	return out
}

// handleWebSocket sends the current tool list, then streams change
// notifications. Clients may send {"type":"enable"|"disable","name":...}.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	defer conn.Close()

	c := &wsClient{conn: conn}
	s.hub.add(c)
	defer s.hub.remove(c)
	wsWriteJSON(s, c, s.snapshot())

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var op func(string) tools.Result
		switch msg.Type {
		case "enable":
			op = s.registry.Enable
		case "disable":
			op = s.registry.Disable
		case "list":
			wsWriteJSON(s, c, s.snapshot())
			continue
		default:
			wsWriteJSON(s, c, wsOutgoing{Type: "error", Message: "invalid message"})
			continue
		}

		s.mu.Lock()
		res := op(msg.Name)
		s.mu.Unlock()

		// successful changes reach this client through the broadcast
		if !res.OK {
			wsWriteJSON(s, c, wsOutgoing{Type: "error", Message: res.Err.Error()})
		}
	}
}

func wsWriteJSON(s *Server, c *wsClient, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket marshal error")
		return
	}
	if err := c.write(data); err != nil {
		s.log.Warn().Err(err).Msg("websocket write error")
	}
}
