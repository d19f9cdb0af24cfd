// Package wsroom implements the WebSocket-room transport.Transport variant:
// a raw WebSocket connection to a room server performing the
// challenge/signed-challenge/welcome handshake (§6 "Room handshake").
//
// Grounded on the server/sync_handler.go (websocket.Dialer.DialContext
// dial pattern, per-peer backoff) and server/client.go (timeout constants,
// ReadJSON/WriteJSON-style framing via a thin wrapper).
package wsroom

import "encoding/json"

// Message types exchanged during and after the handshake. JSON framing,
// discriminated by Type, mirrors the gorillaSyncConn's
// ReadJSON/WriteJSON use in server/sync_handler.go.
const (
	TypePeerIdentification = "peer_identification"
	TypeChallengeRequired   = "challenge_required"
	TypeSignedChallenge     = "signed_challenge"
	TypeWelcome             = "welcome"
	TypePeerJoin            = "peer_join"
	TypePeerLeave           = "peer_leave"
	TypePeerUpdate          = "peer_update"
	TypePeerKicked          = "peer_kicked"
)

// envelope is the wire shape every message shares: a type tag plus a raw
// body the caller decodes according to Type.
type envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// PeerIdentification is sent by the client first (§6).
type PeerIdentification struct {
	Address string `json:"address"`
}

// ChallengeRequired is sent by the server when the client must prove
// control of its wallet address.
type ChallengeRequired struct {
	Challenge string `json:"challenge"`
}

// SignedChallenge is the client's reply: the challenge signed by the
// wallet, wrapped in an auth chain.
type SignedChallenge struct {
	AuthChainJSON string `json:"auth_chain_json"`
}

// Welcome is sent once the handshake succeeds (either immediately, if no
// challenge was required, or after SignedChallenge is accepted).
type Welcome struct {
	Alias         uint32            `json:"alias"`
	PeerIdentities map[uint32]string `json:"peer_identities"`
}

// PeerJoin announces a new peer in the room.
type PeerJoin struct {
	Alias   uint32 `json:"alias"`
	Address string `json:"address"`
}

// PeerLeave announces a peer departing.
type PeerLeave struct {
	Alias uint32 `json:"alias"`
}

// PeerUpdate carries an application payload from one peer to others.
// ToAlias is nil for a room-wide broadcast and set to the intended
// recipient's alias for a directed send.
type PeerUpdate struct {
	FromAlias  uint32  `json:"from_alias"`
	ToAlias    *uint32 `json:"to_alias,omitempty"`
	Body       []byte  `json:"body"`
	Unreliable bool    `json:"unreliable"`
}

// PeerKicked ends the session with a reason.
type PeerKicked struct {
	Reason string `json:"reason"`
}

func encode(msgType string, body interface{}) (envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return envelope{}, err
	}
	return envelope{Type: msgType, Body: raw}, nil
}
