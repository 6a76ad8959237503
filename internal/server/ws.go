package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	eventbus "github.com/hanpama/typegraph/internal/eventbus"
	events "github.com/hanpama/typegraph/internal/events"
	executor "github.com/hanpama/typegraph/internal/executor"
	language "github.com/hanpama/typegraph/internal/language"
	reqid "github.com/hanpama/typegraph/internal/reqid"
	schema "github.com/hanpama/typegraph/internal/schema"
)

// Subprotocol is the WebSocket subprotocol spoken by SubscriptionHandler.
const Subprotocol = "graphql-transport-ws"

var wsWriteWait = 10 * time.Second

const (
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

// Close codes of the graphql-transport-ws protocol.
const (
	closeBadRequest            = 4400
	closeUnauthorized          = 4401
	closeUnsupportedProtocol   = 4406
	closeInitTimeout           = 4408
	closeSubscriberExists      = 4409
	closeTooManyInitialisation = 4429
)

// Message types of the graphql-transport-ws protocol.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

type wsMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type wsInbound struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload *GraphQLRequest `json:"payload,omitempty"`
}

// SubscriptionHandler serves GraphQL operations over WebSocket using the
// graphql-transport-ws protocol. Subscription operations stream one "next"
// message per event; queries and mutations send a single result.
type SubscriptionHandler struct {
	exec     *executor.Executor
	docs     *documents
	opt      Options
	upgrader websocket.Upgrader
}

// NewSubscriptionHandler creates a WebSocket-only handler. Handler already
// routes upgrade requests to one; use this to mount subscriptions on a
// separate path.
func NewSubscriptionHandler(runtime executor.Runtime, sch *schema.Schema, opts ...Option) (*SubscriptionHandler, error) {
	op := defaultOptions(opts)
	docs, err := newDocuments(sch, op.DocumentCache)
	if err != nil {
		return nil, err
	}
	return newSubscriptionHandler(executor.NewExecutor(runtime, sch), docs, op), nil
}

func newSubscriptionHandler(exec *executor.Executor, docs *documents, opt Options) *SubscriptionHandler {
	h := &SubscriptionHandler{exec: exec, docs: docs, opt: opt}
	h.upgrader = websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(opt.CORS.AllowedOrigins) == 0 {
				return true
			}
			return originAllowed(opt.CORS, origin)
		},
	}
	return h
}

func (h *SubscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, _ := reqid.FromRequest(r)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if conn.Subprotocol() != Subprotocol {
		closeConn(conn, closeUnsupportedProtocol, "Unsupported subprotocol")
		return
	}

	s := &session{
		h:    h,
		conn: conn,
		ctx:  ctx,
		out:  make(chan wsMessage, 32),
		subs: make(map[string]context.CancelFunc),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop()
		// a dead writer ends the session; closing unblocks readLoop
		cancel()
		conn.Close()
	}()
	s.readLoop()
	cancel()
	s.wg.Wait()
	close(s.out)
	<-done
}

type session struct {
	h    *SubscriptionHandler
	conn *websocket.Conn
	ctx  context.Context
	out  chan wsMessage
	wg   sync.WaitGroup

	mu    sync.Mutex
	acked bool
	subs  map[string]context.CancelFunc
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-s.out:
			if !ok {
				return
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) send(msg wsMessage) {
	select {
	case s.out <- msg:
	case <-s.ctx.Done():
	}
}

func (s *session) readLoop() {
	if err := s.conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	if s.h.opt.InitTimeout > 0 {
		timer := time.AfterFunc(s.h.opt.InitTimeout, func() {
			s.mu.Lock()
			acked := s.acked
			s.mu.Unlock()
			if !acked {
				closeConn(s.conn, closeInitTimeout, "Connection initialisation timeout")
			}
		})
		defer timer.Stop()
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			closeConn(s.conn, closeBadRequest, "Invalid message received")
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			s.mu.Lock()
			dup := s.acked
			s.acked = true
			s.mu.Unlock()
			if dup {
				closeConn(s.conn, closeTooManyInitialisation, "Too many initialisation requests")
				return
			}
			s.send(wsMessage{Type: msgConnectionAck})
		case msgPing:
			s.send(wsMessage{Type: msgPong})
		case msgPong:
		case msgSubscribe:
			s.mu.Lock()
			acked := s.acked
			_, exists := s.subs[msg.ID]
			s.mu.Unlock()
			switch {
			case !acked:
				closeConn(s.conn, closeUnauthorized, "Unauthorized")
				return
			case msg.ID == "" || msg.Payload == nil:
				closeConn(s.conn, closeBadRequest, "Invalid message received")
				return
			case exists:
				closeConn(s.conn, closeSubscriberExists, fmt.Sprintf("Subscriber for %s already exists", msg.ID))
				return
			}
			s.start(msg.ID, *msg.Payload)
		case msgComplete:
			s.stop(msg.ID)
		default:
			closeConn(s.conn, closeBadRequest, "Invalid message received")
			return
		}
	}
}

func (s *session) start(id string, req GraphQLRequest) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.subs[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		ok := s.run(ctx, id, req)
		if s.stop(id) && ok {
			s.send(wsMessage{ID: id, Type: msgComplete})
		}
	}()
}

// stop cancels the operation id and reports whether it was still running.
func (s *session) stop(id string) bool {
	s.mu.Lock()
	cancel, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// run executes one operation. It reports false when an error message ended
// the operation instead of complete.
func (s *session) run(ctx context.Context, id string, req GraphQLRequest) bool {
	doc, errs := s.h.docs.load(req.Query)
	if len(errs) > 0 {
		s.send(wsMessage{ID: id, Type: msgError, Payload: toSpecErrors(errs)})
		return false
	}
	opType := ""
	if op := doc.Operations.ForName(req.OperationName); op != nil {
		opType = string(op.Operation)
	} else if len(doc.Operations) == 1 {
		opType = string(doc.Operations[0].Operation)
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	var errList []error
	defer func() {
		eventbus.Publish(ctx, events.GraphQLFinish{
			Query:         req.Query,
			OperationName: req.OperationName,
			OperationType: opType,
			Errors:        errList,
			Duration:      time.Since(start),
		})
	}()

	if opType != string(language.Subscription) {
		res := s.h.exec.ExecuteRequest(ctx, doc, req.OperationName, req.Variables, nil)
		for _, e := range res.Errors {
			errList = append(errList, e)
		}
		s.send(wsMessage{ID: id, Type: msgNext, Payload: toSpecResult(res)})
		return true
	}

	results, err := s.h.exec.Subscribe(ctx, doc, req.OperationName, req.Variables, nil)
	if err != nil {
		errList = append(errList, err)
		s.send(wsMessage{ID: id, Type: msgError, Payload: toSpecErrors(language.ErrorList{{Message: err.Error()}})})
		return false
	}
	for res := range results {
		for _, e := range res.Errors {
			errList = append(errList, e)
		}
		s.send(wsMessage{ID: id, Type: msgNext, Payload: toSpecResult(res)})
	}
	return true
}

func closeConn(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}
