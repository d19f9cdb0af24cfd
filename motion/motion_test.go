package motion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsNewer_AcceptsForwardWithinThreshold(t *testing.T) {
	assert.True(t, IsNewer(10, 11))
	assert.True(t, IsNewer(10, 10+ForwardThreshold))
}

func TestIsNewer_RejectsBeyondThreshold(t *testing.T) {
	assert.False(t, IsNewer(10, 10+ForwardThreshold+1))
}

func TestIsNewer_RejectsSameStamp(t *testing.T) {
	assert.False(t, IsNewer(10, 10))
}

func TestIsNewer_HandlesWrapAround(t *testing.T) {
	last := uint32(WrapSize - 1)
	incoming := uint32(2) // wrapped forward past 0
	assert.True(t, IsNewer(last, incoming))
}

func TestAvatarUpdate_SnapsBeyondTeleportThreshold(t *testing.T) {
	a := &Avatar{Current: Vec3{0, 0, 0}}
	a.OnSample(time.Now(), Vec3{200, 0, 0}, Quat{0, 0, 0, 1}, 0, false)

	a.Update(16*time.Millisecond, nil)

	assert.Equal(t, Vec3{200, 0, 0}, a.Current)
}

func TestAvatarUpdate_LerpsTowardTargetWithoutVelocity(t *testing.T) {
	a := &Avatar{Current: Vec3{0, 0, 0}}
	a.OnSample(time.Now(), Vec3{10, 0, 0}, Quat{0, 0, 0, 1}, 0, false)

	a.Update(50*time.Millisecond, nil)

	assert.Greater(t, a.Current.X, float32(0))
	assert.Less(t, a.Current.X, float32(10))
}

type fakeCollider struct{ height float32 }

func (f fakeCollider) GroundHeight(x, z float32) float32 { return f.height }

func TestAvatarUpdate_DescendsWhenAirborne(t *testing.T) {
	a := &Avatar{Current: Vec3{0, 10, 0}, target: Vec3{0, 10, 0}}
	a.Update(100*time.Millisecond, fakeCollider{height: 0})

	assert.Less(t, a.Current.Y, float32(10))
}
