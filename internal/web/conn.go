package web

import (
	"log/slog"
	"sync"
	"time"

	"MediDiag/internal/chatbot"
	"MediDiag/internal/session"

	"github.com/gorilla/websocket"
)

// viewConn binds one websocket to one chat controller.
// Snapshots are coalesced: a slow socket only gets the newest one.
type viewConn struct {
	conn   *websocket.Conn
	ctrl   *chatbot.Controller
	logger *slog.Logger

	mu     sync.Mutex
	latest *session.State
	wake   chan struct{}

	rejects chan rejectedView
	done    chan struct{}
}

func newViewConn(conn *websocket.Conn, ctrl *chatbot.Controller, logger *slog.Logger) *viewConn {
	return &viewConn{
		conn:    conn,
		ctrl:    ctrl,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		rejects: make(chan rejectedView, 8),
		done:    make(chan struct{}),
	}
}

func (v *viewConn) publish(state session.State) {
	v.mu.Lock()
	v.latest = &state
	v.mu.Unlock()

	select {
	case v.wake <- struct{}{}:
	default:
	}
}

func (v *viewConn) take() (session.State, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.latest == nil {
		return session.State{}, false
	}
	state := *v.latest
	v.latest = nil
	return state, true
}

// run serves the connection until the browser goes away, then tears the session down
func (v *viewConn) run() {
	v.publish(v.ctrl.Snapshot())
	v.ctrl.Subscribe(v.publish)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v.writeLoop()
		// A view that cannot be updated stops taking submissions
		v.conn.Close()
	}()

	v.readLoop()

	v.ctrl.Close()
	close(v.done)
	wg.Wait()
	v.conn.Close()
}

func (v *viewConn) readLoop() {
	v.conn.SetReadLimit(maxMessageSize)
	for {
		var msg inbound
		if err := v.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				v.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		switch msg.Type {
		case "submit":
			if err := v.ctrl.Submit(msg.Text); err != nil {
				v.reject(err.Error())
			}
		default:
			v.reject("unknown message type: " + msg.Type)
		}
	}
}

func (v *viewConn) reject(reason string) {
	select {
	case v.rejects <- rejectedView{Type: "rejected", Reason: reason}:
	default:
		v.logger.Warn("dropping rejection notice, writer busy", "reason", reason)
	}
}

func (v *viewConn) writeLoop() {
	for {
		select {
		case <-v.done:
			_ = v.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case r := <-v.rejects:
			if err := v.write(r); err != nil {
				v.logger.Warn("websocket write failed", "error", err)
				return
			}

		case <-v.wake:
			state, ok := v.take()
			if !ok {
				continue
			}
			if err := v.write(newStateView(state)); err != nil {
				v.logger.Warn("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (v *viewConn) write(msg any) error {
	_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return v.conn.WriteJSON(msg)
}
