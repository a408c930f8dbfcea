package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 60 * time.Second
)

var upgrader = websocket.Upgrader{}

type wshandler struct {
	srv  *server
	conn *websocket.Conn
}

func serveSocket(w http.ResponseWriter, r *http.Request) {
	s := getServer(r.Context())
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade", zap.Error(err))
		return
	}
	wh := wshandler{srv: s, conn: c}
	endch := make(chan struct{})
	go wh.read(endch)
	go wh.write(endch)
}

func (h *wshandler) read(endch chan struct{}) {
	defer close(endch)
	for {
		if _, _, err := h.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.srv.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
	}
}

func (h *wshandler) write(endch chan struct{}) {
	defer h.conn.Close()
	ch := make(chan update, 10)
	u := h.srv.lib.addListener(ch)
	defer h.srv.lib.removeListener(ch)
	if err := h.send(u); err != nil {
		h.srv.log.Error("websocket send", zap.Error(err))
		return
	}
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return
			}
			if err := h.send(u); err != nil {
				h.srv.log.Error("websocket send", zap.Error(err))
				return
			}
		case <-t.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.srv.log.Error("websocket ping", zap.Error(err))
				return
			}
		case <-endch:
			return
		}
	}
}

func (h *wshandler) send(u update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	h.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return h.conn.WriteMessage(websocket.TextMessage, data)
}
