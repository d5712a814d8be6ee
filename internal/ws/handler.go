package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/codebreaker-backend/internal/controller"
	"github.com/DoyleJ11/codebreaker-backend/internal/types"
)

type Options struct {
	Logger       *zap.Logger
	WriteTimeout time.Duration
	OutboxSize   int
	// OriginPatterns is passed to websocket.Accept. Empty means same-origin
	// only.
	OriginPatterns []string
}

// outbox is the room-facing side of a connection. Send never blocks: a full
// or closed outbox drops the message.
type outbox struct {
	mu     sync.Mutex
	ch     chan types.ServerMessage
	closed bool
}

func (o *outbox) Send(msg types.ServerMessage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- msg:
		return true
	default:
		return false
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

func Handler(ctl *controller.Controller, opts Options) http.HandlerFunc {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 16
	}
	log := opts.Logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := &outbox{ch: make(chan types.ServerMessage, opts.OutboxSize)}
		client := controller.NewClient(out)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			for msg := range out.ch {
				payload, err := json.Marshal(msg)
				if err != nil {
					log.Error("encode message", zap.String("type", msg.Type), zap.Error(err))
					continue
				}
				wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
				err = conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					log.Debug("write failed, dropping connection", zap.String("remote", r.RemoteAddr), zap.Error(err))
					return
				}
			}
		}()

		defer func() {
			ctl.Disconnect(client)
			out.close()
			wg.Wait()
		}()

		// Reader loop
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read failed", zap.String("player", client.PlayerID()), zap.Error(err))
					}
				}
				return
			}
			if typ != websocket.MessageText {
				_ = ctl.HandleRaw(ctx, client, nil)
				continue
			}
			_ = ctl.HandleRaw(ctx, client, data)
		}
	}
}
