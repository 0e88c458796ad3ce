package embedded

import (
	"math"

	"github.com/coder/hnsw"
)

// index maps chunk ids onto an HNSW graph. Replaced and deleted ids are
// orphaned in the graph rather than removed, and filtered out of results.
type index struct {
	graph   *hnsw.Graph[uint64]
	m       int
	ef      int
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
	orphans int
}

type neighbour struct {
	ID       string
	Distance float32
}

func newIndex(m, ef int) *index {
	if m <= 0 {
		m = 16
	}
	if ef <= 0 {
		ef = 64
	}
	idx := &index{m: m, ef: ef}
	idx.reset()
	return idx
}

func (x *index) reset() {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = x.m
	g.EfSearch = x.ef
	g.Ml = 1 / math.Log(float64(x.m))
	x.graph = g
	x.idMap = make(map[string]uint64)
	x.keyMap = make(map[uint64]string)
	x.nextKey = 0
	x.orphans = 0
}

func (x *index) add(id string, vec []float32) {
	if old, ok := x.idMap[id]; ok {
		delete(x.keyMap, old)
		x.orphans++
	}
	key := x.nextKey
	x.nextKey++

	v := make([]float32, len(vec))
	copy(v, vec)
	normalizeInPlace(v)
	x.graph.Add(hnsw.MakeNode(key, v))
	x.idMap[id] = key
	x.keyMap[key] = id
}

func (x *index) remove(id string) {
	if key, ok := x.idMap[id]; ok {
		delete(x.idMap, id)
		delete(x.keyMap, key)
		x.orphans++
	}
}

func (x *index) live() int {
	return len(x.idMap)
}

// needsCompaction reports whether orphans dominate the graph.
func (x *index) needsCompaction() bool {
	return x.orphans > 64 && x.orphans > x.live()
}

// search returns up to k live neighbours, nearest first.
func (x *index) search(query []float32, k int) []neighbour {
	if k <= 0 || x.live() == 0 {
		return nil
	}
	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// over-fetch so orphaned nodes cannot crowd out live ones
	want := k + x.orphans
	if n := x.graph.Len(); want > n {
		want = n
	}
	nodes := x.graph.Search(q, want)

	out := make([]neighbour, 0, k)
	for _, n := range nodes {
		id, ok := x.keyMap[n.Key]
		if !ok {
			continue
		}
		out = append(out, neighbour{ID: id, Distance: x.graph.Distance(q, n.Value)})
		if len(out) == k {
			break
		}
	}
	return out
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
