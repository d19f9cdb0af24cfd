// Package permission gates scene capabilities behind Allow/Deny/Ask
// decisions, remembered per (scene, permission) key, with coalesced async
// prompts for decisions still pending (§4.J "Permission broker").
//
// Grounded on the pulse/async worker registry idiom (a map of
// keys to in-flight futures other callers can join) adapted here from
// async job dedup to permission-prompt coalescing.
package permission

import (
	"sync"

	"github.com/google/uuid"

	"github.com/coreworld/explorer/logger"
)

// Kind enumerates the privileged actions a scene may request
// (§4.J).
type Kind string

const (
	KindTeleport           Kind = "teleport"
	KindChangeRealm        Kind = "change_realm"
	KindExternalURL        Kind = "external_url"
	KindCameraOverride     Kind = "camera_override"
	KindAvatarModifierArea Kind = "avatar_modifier_area"
	KindHideAvatars        Kind = "hide_avatars"
	KindSetLocomotion      Kind = "set_locomotion"
)

// Decision is the resolution of a permission request.
type Decision int

const (
	Ask Decision = iota
	Allow
	Deny
)

// Key identifies a rememberable decision: a scene (by content hash) or
// realm, paired with the permission kind (§4.J "keyed by
// (scene_hash | realm, permission_type)").
type Key struct {
	SceneOrRealm string
	Permission   Kind
}

// Prompter surfaces an Ask decision to the user and returns their choice.
// Implemented by the UI layer; this package only owns coalescing and the
// remembered-decision cache.
type Prompter interface {
	Prompt(key Key) (Allow bool, Remember bool)
}

// pending tracks one in-flight Ask prompt so repeat requests with an
// identical key can join it instead of opening a second prompt
// (§4.J "while pending, repeat requests with identical key are
// coalesced").
type pending struct {
	done chan struct{}
	result Decision

	// requestID uniquely tags this prompt for correlating the Ask with
	// its eventual Prompter round-trip in logs, since several scenes can
	// coalesce onto the same Key.
	requestID string
}

// Broker resolves permission requests (§4.J).
type Broker struct {
	mu        sync.Mutex
	remembered map[Key]Decision
	inFlight  map[Key]*pending
	prompter  Prompter

	// systemScene is auto-allowed for every permission (§4.J
	// "A system scene (the shell UI) is auto-allowed for every
	// permission").
	systemScene string
}

// New creates a Broker. systemScene is the content-hash (or identifier)
// of the shell UI scene, which bypasses all gating.
func New(prompter Prompter, systemScene string) *Broker {
	return &Broker{
		remembered:  make(map[Key]Decision),
		inFlight:    make(map[Key]*pending),
		prompter:    prompter,
		systemScene: systemScene,
	}
}

// Request resolves a permission request, blocking on a coalesced prompt
// if the decision is not yet remembered (§4.J).
func (b *Broker) Request(sceneID string, key Key) Decision {
	if sceneID == b.systemScene {
		return Allow
	}

	b.mu.Lock()
	if decision, ok := b.remembered[key]; ok {
		b.mu.Unlock()
		return decision
	}

	if existing, ok := b.inFlight[key]; ok {
		b.mu.Unlock()
		<-existing.done
		return existing.result
	}

	p := &pending{done: make(chan struct{}), requestID: uuid.NewString()}
	b.inFlight[key] = p
	b.mu.Unlock()

	logger.PermissionInfow("prompting for permission", "request_id", p.requestID, "scene_or_realm", key.SceneOrRealm, "permission", key.Permission)

	go func() {
		allow, remember := b.prompter.Prompt(key)
		decision := Deny
		if allow {
			decision = Allow
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.inFlight[key] != p {
			// DenyPending already resolved and closed this request while the
			// prompt was outstanding: it owns p.done now, don't close it again.
			return
		}
		if remember {
			b.remembered[key] = decision
		}
		delete(b.inFlight, key)
		p.result = decision
		close(p.done)
	}()

	<-p.done
	return p.result
}

// Forget clears a remembered decision, e.g. when the user revokes a grant
// from settings.
func (b *Broker) Forget(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.remembered, key)
}

// DenyPending resolves every currently pending prompt to Deny without
// remembering the decision (§5 "Permission prompts dropped by the
// user resolve to Deny"), used when the UI is torn down with prompts
// still outstanding.
func (b *Broker) DenyPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, p := range b.inFlight {
		logger.PermissionInfow("denying pending permission prompt", "request_id", p.requestID, "scene_or_realm", key.SceneOrRealm, "permission", key.Permission)
		p.result = Deny
		close(p.done)
		delete(b.inFlight, key)
	}
}
