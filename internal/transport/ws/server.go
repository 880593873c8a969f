package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gibbsworld.ai/internal/protocol"
	"gibbsworld.ai/internal/sim/encoding"
	"gibbsworld.ai/internal/sim/world"
	"gibbsworld.ai/internal/sim/world/terrain/store"
)

// Worlds resolves a HELLO world_preference to a hosted world.
type Worlds interface {
	Pick(pref string) (*world.World, error)
	Manifest() []protocol.WorldRef
}

const (
	viewQueue    = 4
	outQueue     = 16
	viewTimeout  = 2 * time.Minute
	writeTimeout = 5 * time.Second
	idleTimeout  = 5 * time.Minute
)

type Server struct {
	worlds Worlds
	log    *log.Logger

	upgrader websocket.Upgrader
	sessions atomic.Uint64
}

func NewServer(worlds Worlds, logger *log.Logger) *Server {
	return &Server{
		worlds: worlds,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		w, sessionID := s.handshake(conn)
		if w == nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		out := make(chan any, outQueue)
		views := make(chan protocol.ViewMsg, viewQueue)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-out:
					if err := writeJSON(conn, m); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// View worker: one request at a time per connection.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case v := <-views:
					m := s.serveView(ctx, w, v)
					select {
					case out <- m:
					case <-ctx.Done():
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.send(ctx, out, errorMsg("", protocol.ErrProtoBadRequest, "malformed json"))
				continue
			}
			if base.Type != protocol.TypeView {
				s.send(ctx, out, errorMsg("", protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected message type %q", base.Type)))
				continue
			}
			var v protocol.ViewMsg
			if err := json.Unmarshal(msg, &v); err != nil {
				s.send(ctx, out, errorMsg("", protocol.ErrProtoBadRequest, "bad VIEW"))
				continue
			}
			if v.ProtocolVersion != protocol.Version {
				s.send(ctx, out, errorMsg(v.RequestID, protocol.ErrProtoVersion, "bad protocol_version"))
				continue
			}
			select {
			case views <- v:
			default:
				s.send(ctx, out, errorMsg(v.RequestID, protocol.ErrWorldBusy, "too many pending VIEW requests"))
			}
		}
		if s.log != nil {
			s.log.Printf("session %s closed (world %s)", sessionID, w.ID())
		}
	}
}

func (s *Server) send(ctx context.Context, out chan<- any, m any) {
	select {
	case out <- m:
	case <-ctx.Done():
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*world.World, string) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, ""
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil, ""
	}
	if hello.ClientName == "" {
		hello.ClientName = "viewer"
	}

	w, err := s.worlds.Pick(hello.WorldPreference)
	if err != nil {
		_ = writeJSON(conn, errorMsg("", protocol.ErrWorldNotFound, err.Error()))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown world"), time.Now().Add(time.Second))
		return nil, ""
	}

	sessionID := fmt.Sprintf("S%d", s.sessions.Add(1))
	if err := writeJSON(conn, s.welcome(w, sessionID)); err != nil {
		return nil, ""
	}
	if s.log != nil {
		s.log.Printf("session %s: client %q joined world %s", sessionID, hello.ClientName, w.ID())
	}
	return w, sessionID
}

func (s *Server) welcome(w *world.World, sessionID string) protocol.WelcomeMsg {
	cfg := w.Config()
	cat := w.Catalog()
	items := make([]protocol.ItemRef, len(cat.Types))
	for i, t := range cat.Types {
		items[i] = protocol.ItemRef{ID: i + 1, Name: t.Name, Color: t.Color, BlocksMovement: t.BlocksMovement}
	}
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         cfg.ID,
		WorldParams: protocol.WorldParams{
			Seed:           cfg.Seed,
			PatchSize:      cfg.PatchSize,
			Strategy:       cfg.Strategy.String(),
			MCMCIterations: cfg.MCMCIterations,
			BoundaryR:      cfg.BoundaryR,
			MaxViewPatches: cfg.MaxViewPatches,
			Time:           w.CurrentTime(),
		},
		Catalog: protocol.CatalogRef{
			Digest: cat.Digest,
			Count:  cat.Len(),
			Items:  items,
		},
		WorldManifest: s.worlds.Manifest(),
	}
}

func (s *Server) serveView(ctx context.Context, w *world.World, v protocol.ViewMsg) any {
	ctx, cancel := context.WithTimeout(ctx, viewTimeout)
	defer cancel()
	resp, err := w.View(ctx, store.PatchKey{PX: v.MinPX, PY: v.MinPY}, store.PatchKey{PX: v.MaxPX, PY: v.MaxPY})
	if err != nil {
		return errorMsg(v.RequestID, errorCode(err), err.Error())
	}
	msg := protocol.PatchesMsg{
		Type:            protocol.TypePatches,
		ProtocolVersion: protocol.Version,
		RequestID:       v.RequestID,
		WorldID:         w.ID(),
		Time:            resp.Time,
		Patches:         make([]protocol.PatchRef, 0, len(resp.Patches)),
	}
	for _, p := range resp.Patches {
		msg.Patches = append(msg.Patches, protocol.PatchRef{
			PX:       p.PX,
			PY:       p.PY,
			Fixed:    p.Fixed,
			Encoding: protocol.EncodingRLE,
			Data:     encoding.EncodeGrid(p.Grid),
		})
	}
	return msg
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, world.ErrViewTooLarge):
		return protocol.ErrViewTooLarge
	case errors.Is(err, world.ErrBadView):
		return protocol.ErrBadRequest
	case errors.Is(err, world.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrWorldBusy
	}
	return protocol.ErrInternal
}

func errorMsg(requestID, code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		Code:            code,
		Message:         message,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
