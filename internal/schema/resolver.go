package schema

// DependencySource reports the declared dependencies of a table
type DependencySource interface {
	DependenciesOf(name string) []string
}

// ResolveImportOrder orders tables so that every table comes after the tables it
// depends on. Dependencies outside names are ignored, as are self references.
//
// The graph is walked with Kahn's algorithm, dependents first: a table's
// in-degree is the number of requested tables that still need it. The result is
// that walk reversed. Tables left over when the queue drains sit on or behind a
// cycle; they are appended in input order and also returned as unresolved.
// Duplicate names are collapsed, so the result always holds each table once.
func ResolveImportOrder(src DependencySource, names []string) (order []string, unresolved []string) {
	requested := make([]string, 0, len(names))
	inSet := make(map[string]bool, len(names))
	for _, name := range names {
		if !inSet[name] {
			inSet[name] = true
			requested = append(requested, name)
		}
	}

	edges := make(map[string][]string, len(requested))
	inDegree := make(map[string]int, len(requested))
	for _, name := range requested {
		seen := make(map[string]bool)
		for _, dep := range src.DependenciesOf(name) {
			if dep == name || !inSet[dep] || seen[dep] {
				continue
			}
			seen[dep] = true
			edges[name] = append(edges[name], dep)
			inDegree[dep]++
		}
	}

	queue := make([]string, 0, len(requested))
	for _, name := range requested {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	processed := make([]string, 0, len(requested))
	done := make(map[string]bool, len(requested))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		processed = append(processed, name)
		done[name] = true

		for _, dep := range edges[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	order = make([]string, 0, len(requested))
	for i := len(processed) - 1; i >= 0; i-- {
		order = append(order, processed[i])
	}
	for _, name := range requested {
		if !done[name] {
			order = append(order, name)
			unresolved = append(unresolved, name)
		}
	}

	return order, unresolved
}

// ResolveDeleteOrder is the exact reverse of ResolveImportOrder
func ResolveDeleteOrder(src DependencySource, names []string) (order []string, unresolved []string) {
	importOrder, unresolved := ResolveImportOrder(src, names)
	order = make([]string, len(importOrder))
	for i, name := range importOrder {
		order[len(importOrder)-1-i] = name
	}
	return order, unresolved
}

// ResolveImportOrder orders names using the registry's dependencies
func (r *Registry) ResolveImportOrder(names []string) ([]string, []string) {
	return ResolveImportOrder(r, names)
}

// ResolveDeleteOrder orders names for deletion using the registry's dependencies
func (r *Registry) ResolveDeleteOrder(names []string) ([]string, []string) {
	return ResolveDeleteOrder(r, names)
}
