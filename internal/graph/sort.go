package graph

// Цвета вершин для обхода в глубину.
const (
	white = iota // не посещена
	grey         // в стеке обхода
	black        // обработана
)

// Check проверяет граф на циклы обходом в глубину.
// Возвращает *CycleError с вершиной, замыкающей цикл.
func Check(g *Graph) error {
	color := make([]int, g.Len())

	var visit func(v int) error
	visit = func(v int) error {
		color[v] = grey
		for _, u := range g.dependents[v] {
			switch color[u] {
			case grey:
				return &CycleError{Vertex: u}
			case white:
				if err := visit(u); err != nil {
					return err
				}
			}
		}
		color[v] = black
		return nil
	}

	for v := range color {
		if color[v] == white {
			if err := visit(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Зависимости всегда идут раньше зависимых вершин.
func TopologicalSort(g *Graph) ([]int, error) {
	// Копируем inDegree, чтобы не модифицировать граф
	inDegree := make([]int, g.Len())
	for v := range inDegree {
		inDegree[v] = len(g.deps[v])
	}

	queue := g.Roots()
	order := make([]int, 0, g.Len())

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)

		for _, dependent := range g.dependents[v] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все вершины обработаны — есть цикл
	if len(order) != g.Len() {
		if err := Check(g); err != nil {
			return nil, err
		}
		// Check обязан найти цикл; вершина с ненулевым inDegree лежит на нём или за ним
		for v, d := range inDegree {
			if d > 0 {
				return nil, &CycleError{Vertex: v}
			}
		}
	}

	return order, nil
}
