package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/pylearn/internal/limiter"
	"github.com/michaelbrown/pylearn/internal/runner"
)

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type    string   `json:"type"` // execute, cancel
	ID      string   `json:"id"`
	Code    string   `json:"code"`
	Timeout *float64 `json:"timeout,omitempty"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type   string         `json:"type"` // queued, result, busy, error
	ID     string         `json:"id,omitempty"`
	Result *runner.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// wsConn serialises writes to one connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	s    *Server
}

func (c *wsConn) send(v wsOutgoing) {
	data, err := json.Marshal(v)
	if err != nil {
		c.s.logger.Error().Err(err).Msg("websocket marshal error")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.s.logger.Debug().Err(err).Msg("websocket write error")
	}
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range s.cfg.Server.CORSOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

func (s *Server) handleExecuteWS(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	defer conn.Close()

	owner := uuid.NewString()
	client := limiter.ClientIP(r)
	if s.limiter != nil {
		client = s.limiter.ClientIP(r)
	}
	c := &wsConn{conn: conn, s: s}

	// Runs outlive the HTTP request context; the connection owns them.
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		if n := s.runs.CancelOwner(owner); n > 0 {
			s.logger.Debug().Int("runs", n).Msg("cancelled runs of closed websocket")
		}
		wg.Wait()
	}()

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		switch msg.Type {
		case "execute":
			if msg.ID == "" {
				msg.ID = uuid.NewString()
			}
			if s.limiter != nil && !s.limiter.Allow(client) {
				c.send(wsOutgoing{Type: "busy", ID: msg.ID, Error: "too many requests"})
				continue
			}
			s.startWSRun(ctx, c, owner, msg, &wg)
		case "cancel":
			if !s.runs.Cancel(owner, msg.ID) {
				c.send(wsOutgoing{Type: "error", ID: msg.ID, Error: "no such run"})
			}
		default:
			c.send(wsOutgoing{Type: "error", ID: msg.ID, Error: "invalid message"})
		}
	}
}

func (s *Server) startWSRun(parent context.Context, c *wsConn, owner string, msg wsIncoming, wg *sync.WaitGroup) {
	ctx, cancel := context.WithCancel(parent)
	if !s.runs.Add(owner, msg.ID, cancel) {
		cancel()
		c.send(wsOutgoing{Type: "error", ID: msg.ID, Error: "run id already in use"})
		return
	}

	req := executeRequest{Code: msg.Code, Timeout: msg.Timeout}
	job, err := s.pool.Submit(ctx, req.runnerRequest())
	if err != nil {
		s.runs.Done(owner, msg.ID)
		cancel()
		if errors.Is(err, runner.ErrBusy) {
			c.send(wsOutgoing{Type: "busy", ID: msg.ID, Error: "all runners are busy, try again shortly"})
		} else {
			c.send(wsOutgoing{Type: "error", ID: msg.ID, Error: err.Error()})
		}
		return
	}
	c.send(wsOutgoing{Type: "queued", ID: msg.ID})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		defer s.runs.Done(owner, msg.ID)

		var res runner.Result
		select {
		case res = <-job.Result:
		case <-ctx.Done():
			res = runner.Result{Status: runner.StatusError, Error: "Code execution cancelled"}
		}
		c.send(wsOutgoing{Type: "result", ID: msg.ID, Result: &res})
	}()
}
