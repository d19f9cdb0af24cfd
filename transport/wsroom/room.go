package wsroom

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coreworld/explorer/errors"
	"github.com/coreworld/explorer/identity"
	"github.com/coreworld/explorer/logger"
	"github.com/coreworld/explorer/transport"
)

// WebSocket timeout constants, same values and rationale as the
// server/client.go (gorilla's recommended chat-example timings), since
// these hold regardless of payload domain.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Signer produces a signature/auth-chain for a challenge string. Wallet
// cryptography itself is out of scope (§1); the room only needs
// "produces a signature for a challenge string".
type Signer func(challenge string) (authChainJSON string, err error)

// Room is the WebSocket-room transport.Transport implementation.
type Room struct {
	url    string
	self   identity.Address
	sign   Signer
	policy transport.RetryPolicy

	mu      sync.Mutex
	conn    *websocket.Conn
	alias   uint32
	peers   map[uint32]identity.Address
	dead    bool
	events  chan transport.Event
	closeCh chan struct{}
}

// New creates a Room transport for the given room server URL.
func New(url string, self identity.Address, sign Signer, policy transport.RetryPolicy) *Room {
	return &Room{
		url:     url,
		self:    self,
		sign:    sign,
		policy:  policy,
		peers:   make(map[uint32]identity.Address),
		events:  make(chan transport.Event, 256),
		closeCh: make(chan struct{}),
	}
}

// Connect dials the room with bounded retry and performs the
// challenge/signed-challenge/welcome handshake on each attempt.
func (r *Room) Connect(ctx context.Context) error {
	err := transport.ConnectWithRetry(ctx, r.policy, func(attemptCtx context.Context, attempt int, timeout time.Duration) error {
		logger.TransportInfow("dialing room", "url", r.url, "attempt", attempt)
		dialer := websocket.Dialer{HandshakeTimeout: timeout}
		conn, _, dialErr := dialer.DialContext(attemptCtx, r.url, nil)
		if dialErr != nil {
			logger.TransportWarnw("room dial failed", "url", r.url, "attempt", attempt, "error", dialErr)
			return errors.Wrapf(dialErr, "dial room %s", r.url)
		}

		if err := r.handshake(attemptCtx, conn); err != nil {
			conn.Close()
			return err
		}

		r.mu.Lock()
		r.conn = conn
		r.dead = false
		r.mu.Unlock()

		go r.readLoop(conn)
		go r.pingLoop(conn)
		return nil
	})

	if err != nil {
		r.mu.Lock()
		r.dead = true
		r.mu.Unlock()
		return errors.Wrapf(err, "connect room %s", r.url)
	}
	return nil
}

func (r *Room) handshake(ctx context.Context, conn *websocket.Conn) error {
	if err := writeJSON(conn, TypePeerIdentification, PeerIdentification{Address: r.self.String()}); err != nil {
		return errors.Wrap(err, "send peer identification")
	}

	env, err := readEnvelope(conn)
	if err != nil {
		return errors.Wrap(err, "read handshake reply")
	}

	switch env.Type {
	case TypeChallengeRequired:
		var challenge ChallengeRequired
		if err := json.Unmarshal(env.Body, &challenge); err != nil {
			return errors.Wrap(err, "decode challenge_required")
		}
		authChain, err := r.sign(challenge.Challenge)
		if err != nil {
			return errors.Wrap(err, "sign challenge")
		}
		if err := writeJSON(conn, TypeSignedChallenge, SignedChallenge{AuthChainJSON: authChain}); err != nil {
			return errors.Wrap(err, "send signed challenge")
		}
		env, err = readEnvelope(conn)
		if err != nil {
			return errors.Wrap(err, "read welcome after signed challenge")
		}
		if env.Type != TypeWelcome {
			return errors.Newf("expected welcome after signed challenge, got %s", env.Type)
		}
	case TypeWelcome:
		// no challenge needed
	default:
		return errors.Newf("unexpected handshake reply type %s", env.Type)
	}

	var welcome Welcome
	if err := json.Unmarshal(env.Body, &welcome); err != nil {
		return errors.Wrap(err, "decode welcome")
	}

	r.mu.Lock()
	r.alias = welcome.Alias
	for alias, addrStr := range welcome.PeerIdentities {
		addr, err := identity.Parse(addrStr)
		if err != nil {
			logger.TransportWarnw("dropping malformed peer identity in welcome", "alias", alias, "error", err)
			continue
		}
		r.peers[alias] = addr
	}
	r.mu.Unlock()

	logger.TransportInfow("room handshake complete", "alias", welcome.Alias, "peer_count", len(welcome.PeerIdentities))
	return nil
}

func (r *Room) Send(recipient transport.Recipient, data []byte, reliable bool) error {
	r.mu.Lock()
	conn := r.conn
	fromAlias := r.alias
	r.mu.Unlock()
	if conn == nil {
		return errors.New("room transport not connected")
	}

	update := PeerUpdate{
		FromAlias:  fromAlias,
		Body:       data,
		Unreliable: !reliable,
	}
	if !recipient.Broadcast {
		toAlias := r.aliasFor(recipient.Peer)
		update.ToAlias = &toAlias
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return writeJSON(conn, TypePeerUpdate, update)
}

func (r *Room) aliasFor(addr identity.Address) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for alias, a := range r.peers {
		if a == addr {
			return alias
		}
	}
	return 0
}

func (r *Room) selfAlias() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alias
}

func (r *Room) Events() <-chan transport.Event {
	return r.events
}

func (r *Room) Dead() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dead
}

func (r *Room) Close() error {
	close(r.closeCh)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *Room) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		env, err := readEnvelope(conn)
		if err != nil {
			logger.TransportWarnw("room read failed, marking dead", "error", err)
			r.mu.Lock()
			r.dead = true
			r.mu.Unlock()
			close(r.events)
			return
		}

		evt, ok := r.dispatch(env)
		if !ok {
			continue
		}
		select {
		case r.events <- evt:
		default:
			logger.TransportWarnw("room event channel full, dropping", "kind", evt.Kind)
		}
	}
}

func (r *Room) dispatch(env envelope) (transport.Event, bool) {
	switch env.Type {
	case TypePeerJoin:
		var msg PeerJoin
		if err := json.Unmarshal(env.Body, &msg); err != nil {
			logger.TransportWarnw("decode peer_join failed", "error", err)
			return transport.Event{}, false
		}
		addr, err := identity.Parse(msg.Address)
		if err != nil {
			logger.TransportWarnw("malformed peer_join address", "error", err)
			return transport.Event{}, false
		}
		r.mu.Lock()
		r.peers[msg.Alias] = addr
		r.mu.Unlock()
		return transport.Event{Kind: transport.EventPeerJoined, Peer: addr}, true

	case TypePeerLeave:
		var msg PeerLeave
		if err := json.Unmarshal(env.Body, &msg); err != nil {
			return transport.Event{}, false
		}
		r.mu.Lock()
		addr := r.peers[msg.Alias]
		delete(r.peers, msg.Alias)
		r.mu.Unlock()
		return transport.Event{Kind: transport.EventPeerLeft, Peer: addr}, true

	case TypePeerUpdate:
		var msg PeerUpdate
		if err := json.Unmarshal(env.Body, &msg); err != nil {
			logger.TransportWarnw("decode peer_update failed", "error", err)
			return transport.Event{}, false
		}
		if msg.ToAlias != nil && *msg.ToAlias != r.selfAlias() {
			return transport.Event{}, false // directed at another peer in the room
		}
		r.mu.Lock()
		addr := r.peers[msg.FromAlias]
		r.mu.Unlock()
		return transport.Event{Kind: transport.EventDataReceived, Peer: addr, Data: msg.Body}, true

	case TypePeerKicked:
		r.mu.Lock()
		r.dead = true
		r.mu.Unlock()
		return transport.Event{}, false

	default:
		logger.TransportWarnw("unknown room message type", "type", env.Type)
		return transport.Event{}, false
	}
}

func (r *Room) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.closeCh:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, msgType string, body interface{}) error {
	env, err := encode(msgType, body)
	if err != nil {
		return err
	}
	return conn.WriteJSON(env)
}

func readEnvelope(conn *websocket.Conn) (envelope, error) {
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		return envelope{}, err
	}
	return env, nil
}
