package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing(t *testing.T) {
	t.Run("Zero filled", func(t *testing.T) {
		r := NewRing[int](3)
		require.Equal(t, 3, r.Len())
		require.Equal(t, 0, Reduce(r, 0, func(a, v int) int { return a + v }))
	})

	t.Run("Overwrites oldest", func(t *testing.T) {
		r := NewRing[int](3)
		for i := 1; i <= 5; i++ {
			r.Push(i)
		}
		var got []int
		r.Each(func(v int) { got = append(got, v) })
		require.Equal(t, []int{3, 4, 5}, got)
		require.Equal(t, 5, r.Newest())
	})

	t.Run("Reset", func(t *testing.T) {
		r := NewRing[int](2)
		r.Push(9)
		r.Reset()
		require.Equal(t, 0, r.Newest())
	})
}
