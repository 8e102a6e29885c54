// Package graph — граф зависимостей над плотными целыми вершинами.
//
// Вершины — индексы 0..n-1, имена и данные узлов хранит владелец графа.
// Пакет не выполняет I/O и не знает ничего о jobs.
package graph

import (
	"errors"
	"fmt"
	"iter"
)

// ErrCycleDetected — в графе есть цикл.
var ErrCycleDetected = errors.New("cycle detected")

// CycleError — ошибка цикла с вершиной, на которой он обнаружен.
type CycleError struct {
	Vertex int
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected at vertex %d", e.Vertex)
}

// Unwrap возвращает ErrCycleDetected.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// Graph — ориентированный граф "v зависит от u".
//
// Число вершин фиксируется при создании. Рёбра хранятся в обе стороны:
// deps[v] — от кого зависит v, dependents[u] — кто зависит от u.
type Graph struct {
	deps       [][]int
	dependents [][]int
}

// New создаёт граф на n вершин без рёбер.
func New(n int) *Graph {
	return &Graph{
		deps:       make([][]int, n),
		dependents: make([][]int, n),
	}
}

// Len возвращает количество вершин.
func (g *Graph) Len() int {
	return len(g.deps)
}

// AddDependency добавляет ребро: v зависит от u.
// Повторное добавление того же ребра ничего не меняет.
func (g *Graph) AddDependency(v, u int) {
	for _, dep := range g.deps[v] {
		if dep == u {
			return // уже связаны
		}
	}
	g.deps[v] = append(g.deps[v], u)
	g.dependents[u] = append(g.dependents[u], v)
}

// HasDependency проверяет наличие ребра "v зависит от u".
func (g *Graph) HasDependency(v, u int) bool {
	for _, dep := range g.deps[v] {
		if dep == u {
			return true
		}
	}
	return false
}

// Dependencies возвращает вершины, от которых зависит v.
func (g *Graph) Dependencies(v int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, u := range g.deps[v] {
			if !yield(u) {
				return
			}
		}
	}
}

// Dependents возвращает вершины, которые зависят от v.
func (g *Graph) Dependents(v int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, u := range g.dependents[v] {
			if !yield(u) {
				return
			}
		}
	}
}

// InDegree возвращает количество зависимостей вершины.
func (g *Graph) InDegree(v int) int {
	return len(g.deps[v])
}

// Roots возвращает вершины без зависимостей.
func (g *Graph) Roots() []int {
	roots := make([]int, 0)
	for v := range g.deps {
		if len(g.deps[v]) == 0 {
			roots = append(roots, v)
		}
	}
	return roots
}
