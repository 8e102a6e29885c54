package graph

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDependency(t *testing.T) {
	g := New(3)
	g.AddDependency(1, 0)
	g.AddDependency(2, 1)

	assert.Equal(t, []int{0}, slices.Collect(g.Dependencies(1)))
	assert.Equal(t, []int{1}, slices.Collect(g.Dependents(0)))
	assert.Empty(t, slices.Collect(g.Dependencies(0)))
	assert.True(t, g.HasDependency(2, 1))
	assert.False(t, g.HasDependency(1, 2))
}

func TestAddDependency_Idempotent(t *testing.T) {
	g := New(2)
	g.AddDependency(1, 0)
	g.AddDependency(1, 0)

	assert.Equal(t, 1, g.InDegree(1))
	assert.Len(t, slices.Collect(g.Dependents(0)), 1)
}

func TestDependencies_Restartable(t *testing.T) {
	g := New(3)
	g.AddDependency(2, 0)
	g.AddDependency(2, 1)

	seq := g.Dependencies(2)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)

	// Последовательность отражает текущее состояние графа
	g2 := New(4)
	g2.AddDependency(3, 0)
	seq = g2.Dependencies(3)
	g2.AddDependency(3, 1)
	assert.Equal(t, []int{0, 1}, slices.Collect(seq))
}

func TestDependencies_EarlyBreak(t *testing.T) {
	g := New(4)
	g.AddDependency(3, 0)
	g.AddDependency(3, 1)
	g.AddDependency(3, 2)

	count := 0
	for range g.Dependencies(3) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestRoots(t *testing.T) {
	g := New(4)
	g.AddDependency(2, 0)
	g.AddDependency(3, 2)

	assert.Equal(t, []int{0, 1}, g.Roots())
}

func TestCheck(t *testing.T) {
	t.Run("empty graph", func(t *testing.T) {
		assert.NoError(t, Check(New(0)))
	})

	t.Run("no edges", func(t *testing.T) {
		assert.NoError(t, Check(New(5)))
	})

	t.Run("diamond", func(t *testing.T) {
		g := New(4)
		g.AddDependency(1, 0)
		g.AddDependency(2, 0)
		g.AddDependency(3, 1)
		g.AddDependency(3, 2)
		assert.NoError(t, Check(g))
	})

	t.Run("three node cycle", func(t *testing.T) {
		g := New(3)
		g.AddDependency(0, 2)
		g.AddDependency(1, 0)
		g.AddDependency(2, 1)

		err := Check(g)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCycleDetected))

		var cycleErr *CycleError
		require.True(t, errors.As(err, &cycleErr))
		assert.Contains(t, []int{0, 1, 2}, cycleErr.Vertex)
	})

	t.Run("self loop", func(t *testing.T) {
		g := New(2)
		g.AddDependency(1, 1)

		var cycleErr *CycleError
		require.ErrorAs(t, Check(g), &cycleErr)
		assert.Equal(t, 1, cycleErr.Vertex)
	})

	t.Run("cycle behind acyclic prefix", func(t *testing.T) {
		// 0 → 1 → 2 → 3 → 1
		g := New(4)
		g.AddDependency(1, 0)
		g.AddDependency(2, 1)
		g.AddDependency(3, 2)
		g.AddDependency(1, 3)

		var cycleErr *CycleError
		require.ErrorAs(t, Check(g), &cycleErr)
		assert.Contains(t, []int{1, 2, 3}, cycleErr.Vertex)
	})
}

func TestTopologicalSort(t *testing.T) {
	g := New(4)
	g.AddDependency(3, 1)
	g.AddDependency(3, 2)
	g.AddDependency(1, 0)
	g.AddDependency(2, 0)

	order, err := TopologicalSort(g)
	require.NoError(t, err)
	require.Len(t, order, 4)
	assertTopological(t, g, order)
}

func TestTopologicalSort_Cycle(t *testing.T) {
	g := New(3)
	g.AddDependency(1, 0)
	g.AddDependency(2, 1)
	g.AddDependency(1, 2)

	_, err := TopologicalSort(g)
	require.ErrorIs(t, err, ErrCycleDetected)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, []int{1, 2}, cycleErr.Vertex)
}

func TestTopologicalSort_RandomDAGs(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		n := 1 + rnd.Intn(20)
		g := New(n)

		// Рёбра только от меньшей перестановочной позиции к большей — граф ацикличен
		perm := rnd.Perm(n)
		for e := 0; e < n*2; e++ {
			a, b := rnd.Intn(n), rnd.Intn(n)
			if a == b {
				continue
			}
			if a > b {
				a, b = b, a
			}
			g.AddDependency(perm[b], perm[a])
		}

		require.NoError(t, Check(g))
		order, err := TopologicalSort(g)
		require.NoError(t, err)
		require.Len(t, order, n)
		assertTopological(t, g, order)
	}
}

func assertTopological(t *testing.T, g *Graph, order []int) {
	t.Helper()

	position := make(map[int]int, len(order))
	for i, v := range order {
		position[v] = i
	}
	for v := 0; v < g.Len(); v++ {
		for u := range g.Dependencies(v) {
			assert.Less(t, position[u], position[v], "dependency %d must precede %d", u, v)
		}
	}
}
