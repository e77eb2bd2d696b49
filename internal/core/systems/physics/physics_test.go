package physics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAABB(t *testing.T) {
	box := AABBAround(Vec3{1, 1, 1}, 1)
	require.Equal(t, Vec3{0, 0, 0}, box.Min)
	require.Equal(t, Vec3{2, 2, 2}, box.Max)
	require.True(t, box.Contains(Vec3{1, 2, 0}))
	require.False(t, box.Contains(Vec3{3, 1, 1}))
	require.True(t, box.Intersects(AABBAround(Vec3{2.5, 1, 1}, 1)))
	require.False(t, box.Intersects(AABBAround(Vec3{5, 5, 5}, 1)))
	require.Equal(t, Vec3{1, 1, 1}, box.Center())
}

func TestRaySphere(t *testing.T) {
	frac, hit := RaySphere(Vec3{-10, 0, 0}, Vec3{10, 0, 0}, Vec3{}, 1)
	require.True(t, hit)
	require.InDelta(t, 0.45, frac, 1e-9)

	_, hit = RaySphere(Vec3{-10, 5, 0}, Vec3{10, 5, 0}, Vec3{}, 1)
	require.False(t, hit)
}
