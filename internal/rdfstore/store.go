package rdfstore

import (
	"sort"
)

type termSet map[Term]struct{}

type index map[Term]map[Term]termSet

// add inserts (a, b, c) and reports whether it was new
func (ix index) add(a, b, c Term) bool {
	second, ok := ix[a]
	if !ok {
		second = make(map[Term]termSet)
		ix[a] = second
	}
	third, ok := second[b]
	if !ok {
		third = make(termSet)
		second[b] = third
	}
	if _, exists := third[c]; exists {
		return false
	}
	third[c] = struct{}{}
	return true
}

// graph holds the triples of one graph in three permutation indexes
type graph struct {
	spo  index
	pos  index
	osp  index
	size int
}

func newGraph() *graph {
	return &graph{
		spo: make(index),
		pos: make(index),
		osp: make(index),
	}
}

func (g *graph) add(s, p, o Term) bool {
	if !g.spo.add(s, p, o) {
		return false
	}
	g.pos.add(p, o, s)
	g.osp.add(o, s, p)
	g.size++
	return true
}

// match calls fn for every triple matching the pattern; zero terms are
// wildcards. Iteration stops when fn returns false, and match reports whether
// it ran to completion.
func (g *graph) match(s, p, o Term, fn func(Triple) bool) bool {
	switch {
	case !s.IsZero():
		for pk, objs := range g.spo[s] {
			if !p.IsZero() && pk != p {
				continue
			}
			for ok := range objs {
				if !o.IsZero() && ok != o {
					continue
				}
				if !fn(Triple{Subject: s, Predicate: pk, Object: ok}) {
					return false
				}
			}
		}
	case !p.IsZero():
		for ok, subjs := range g.pos[p] {
			if !o.IsZero() && ok != o {
				continue
			}
			for sk := range subjs {
				if !fn(Triple{Subject: sk, Predicate: p, Object: ok}) {
					return false
				}
			}
		}
	case !o.IsZero():
		for sk, preds := range g.osp[o] {
			for pk := range preds {
				if !fn(Triple{Subject: sk, Predicate: pk, Object: o}) {
					return false
				}
			}
		}
	default:
		for sk, preds := range g.spo {
			for pk, objs := range preds {
				for ok := range objs {
					if !fn(Triple{Subject: sk, Predicate: pk, Object: ok}) {
						return false
					}
				}
			}
		}
	}
	return true
}

// Store is an in-memory quad store. It is not safe for concurrent use; the
// owning worker serializes every access.
type Store struct {
	graphs map[Term]*graph
	size   int
}

// New creates an empty store
func New() *Store {
	return &Store{graphs: make(map[Term]*graph)}
}

// Add inserts a quad and reports whether it was not already present
func (s *Store) Add(q Quad) bool {
	g, ok := s.graphs[q.Graph]
	if !ok {
		g = newGraph()
		s.graphs[q.Graph] = g
	}
	if !g.add(q.Subject, q.Predicate, q.Object) {
		return false
	}
	s.size++
	return true
}

// Len returns the number of quads in the store
func (s *Store) Len() int {
	return s.size
}

// GraphLen returns the number of triples in one graph
func (s *Store) GraphLen(name Term) int {
	if g, ok := s.graphs[name]; ok {
		return g.size
	}
	return 0
}

// HasGraph reports whether the named graph holds at least one triple
func (s *Store) HasGraph(name Term) bool {
	g, ok := s.graphs[name]
	return ok && g.size > 0
}

// GraphNames returns the names of all non-empty named graphs, sorted
func (s *Store) GraphNames() []Term {
	names := make([]Term, 0, len(s.graphs))
	for name, g := range s.graphs {
		if name.IsZero() || g.size == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i].Kind != names[j].Kind {
			return names[i].Kind < names[j].Kind
		}
		return names[i].Value < names[j].Value
	})
	return names
}

// Match calls fn for each triple of graph name matching the pattern. Zero
// subject, predicate or object terms are wildcards. It reports whether the
// iteration ran to completion.
func (s *Store) Match(name, subj, pred, obj Term, fn func(Triple) bool) bool {
	g, ok := s.graphs[name]
	if !ok {
		return true
	}
	return g.match(subj, pred, obj, fn)
}

// Quads calls fn for every quad in the store until fn returns false
func (s *Store) Quads(fn func(Quad) bool) {
	for name, g := range s.graphs {
		complete := g.match(Term{}, Term{}, Term{}, func(t Triple) bool {
			return fn(Quad{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object, Graph: name})
		})
		if !complete {
			return
		}
	}
}
