package motion

import (
	"math"
	"time"

	"github.com/coreworld/explorer/crdt"
	"github.com/coreworld/explorer/wire"
)

// TeleportThreshold is the distance past which a foreign avatar snaps
// instead of extrapolating (§4.I, "e.g. 125 m").
const TeleportThreshold = 125.0

// unknownVelocityLerp is the interpolation window used when no velocity
// estimate exists yet (§4.I "linearly interpolate toward target over
// ~500 ms").
const unknownVelocityLerp = 500 * time.Millisecond

// rotationLerpWindow is the rotation catch-up window (§4.I "Rotation
// lerps toward target over ~200 ms").
const rotationLerpWindow = 200 * time.Millisecond

// ColliderBackend answers ground-height queries for descend behavior
// (§4.I "query the scene collider backend for ground height"). The
// physics/collider implementation itself is an external collaborator
// (§1 Out of scope).
type ColliderBackend interface {
	GroundHeight(x, z float32) float32
}

// Vec3 is a minimal 3-component vector; the motion package has no need
// for a general math library and the renderer's own vector type is an
// external collaborator (§1).
type Vec3 struct{ X, Y, Z float32 }

func (a Vec3) sub(b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) scale(s float32) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) length() float32 {
	return float32(math.Sqrt(float64(a.X*a.X + a.Y*a.Y + a.Z*a.Z)))
}

// Quat is a minimal quaternion for rotation lerp; same rationale as Vec3.
type Quat struct{ X, Y, Z, W float32 }

// Avatar tracks one foreign player's motion state between samples
// (§4.I).
type Avatar struct {
	Current  Vec3
	CurrentRot Quat

	target     Vec3
	targetRot  Quat
	hasVelocity bool
	velocity   Vec3

	lastSampleAt time.Time
	hasSample    bool
	updateFreq   time.Duration // EWMA of inter-arrival time

	Grounded bool
	Jumping  bool

	lastStamp    uint32
	hasLastStamp bool
}

const ewmaAlpha = 0.2

// OnSample applies a newly arrived position sample (§4.H "also
// update an in-memory interpolation target for the motion subsystem").
// stamp is the movement-compression temporal stamp; samples that are not
// newer per IsNewer are discarded (§5).
func (a *Avatar) OnSample(now time.Time, target Vec3, targetRot Quat, stamp uint32, hasStamp bool) {
	if hasStamp {
		if a.hasLastStamp && !IsNewer(a.lastStamp, stamp) {
			return
		}
		a.lastStamp = stamp
		a.hasLastStamp = true
	}

	if a.hasSample {
		interval := now.Sub(a.lastSampleAt)
		if a.updateFreq == 0 {
			a.updateFreq = interval
		} else {
			a.updateFreq = time.Duration(float64(a.updateFreq)*(1-ewmaAlpha) + float64(interval)*ewmaAlpha)
		}
	}
	a.lastSampleAt = now
	a.hasSample = true

	a.target = target
	a.targetRot = targetRot
}

// Update advances Current/CurrentRot by dt, snapping, blending, or
// interpolating per §4.I.
func (a *Avatar) Update(dt time.Duration, collider ColliderBackend) {
	distance := a.target.sub(a.Current).length()

	switch {
	case distance > TeleportThreshold:
		a.Current = a.target
		a.velocity = Vec3{}
		a.hasVelocity = false

	case a.hasVelocity:
		arrival := a.updateFreq
		if arrival <= 0 {
			arrival = unknownVelocityLerp
		}
		half := arrival / 2
		if half <= 0 {
			half = time.Millisecond
		}
		desired := a.target.sub(a.Current).scale(1 / float32(half.Seconds()))
		blend := float32(dt.Seconds() / half.Seconds())
		if blend > 1 {
			blend = 1
		}
		a.velocity = a.velocity.add(desired.sub(a.velocity).scale(blend))
		a.Current = a.Current.add(a.velocity.scale(float32(dt.Seconds())))

	default:
		blend := float32(dt.Seconds() / unknownVelocityLerp.Seconds())
		if blend > 1 {
			blend = 1
		}
		a.Current = a.Current.add(a.target.sub(a.Current).scale(blend))
		if distance > 0.001 {
			a.velocity = a.target.sub(a.Current).scale(1 / float32(unknownVelocityLerp.Seconds()))
			a.hasVelocity = true
		}
	}

	rotBlend := float32(dt.Seconds() / rotationLerpWindow.Seconds())
	if rotBlend > 1 {
		rotBlend = 1
	}
	a.CurrentRot = lerpQuat(a.CurrentRot, a.targetRot, rotBlend)

	if !a.Grounded && collider != nil {
		ground := collider.GroundHeight(a.Current.X, a.Current.Z)
		if a.Current.Y > ground {
			descend := float32(dt.Seconds()) * 9.8
			a.Current.Y -= descend
			if a.Current.Y < ground {
				a.Current.Y = ground
				a.Grounded = true
				a.Jumping = false
			}
		} else {
			a.Current.Y = ground
			a.Grounded = true
		}
	}
}

func lerpQuat(a, b Quat, t float32) Quat {
	return Quat{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
		W: a.W + (b.W-a.W)*t,
	}
}

// Transform returns the avatar's current pose as a wire transform ready
// for a LWW put on the foreign player's TRANSFORM component, parented to
// the scene root.
func (a *Avatar) Transform() wire.Transform {
	return wire.Transform{
		Translation: [3]float32{a.Current.X, a.Current.Y, a.Current.Z},
		Rotation:    [4]float32{a.CurrentRot.X, a.CurrentRot.Y, a.CurrentRot.Z, a.CurrentRot.W},
		Scale:       [3]float32{1, 1, 1},
		Parent:      crdt.EntityRoot,
	}
}
