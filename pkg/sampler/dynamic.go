package sampler

// RNG is the uniform random source consumed by samplers.
type RNG interface {
	Float64() float64
	Intn(n int) int
}

// Dynamic is a weighted sampler supporting O(log n) insertion, removal and
// sampling. Weights live in the leaves of a complete binary tree whose
// internal nodes hold subtree sums; removed slots are recycled.
type Dynamic[T any] struct {
	items []T
	valid []bool
	tree  []float64 // 1-based heap layout; leaves at [capacity, 2*capacity)
	free  []int
	size  int // number of used leaf slots (valid or freed)
	n     int // number of valid items
}

// NewDynamic returns an empty sampler.
func NewDynamic[T any]() *Dynamic[T] {
	return &Dynamic[T]{tree: make([]float64, 2)}
}

func (d *Dynamic[T]) capacity() int {
	return len(d.tree) / 2
}

// Insert adds item with weight w and returns its slot, which stays valid
// until the item is removed.
func (d *Dynamic[T]) Insert(item T, w float64) int {
	var slot int
	if len(d.free) > 0 {
		slot = d.free[len(d.free)-1]
		d.free = d.free[:len(d.free)-1]
		d.items[slot] = item
		d.valid[slot] = true
	} else {
		if d.size == d.capacity() {
			d.grow()
		}
		slot = d.size
		d.size++
		d.items = append(d.items, item)
		d.valid = append(d.valid, true)
	}
	d.n++
	d.set(slot, w)
	return slot
}

// Remove drops the item stored in slot.
func (d *Dynamic[T]) Remove(slot int) {
	if slot < 0 || slot >= d.size || !d.valid[slot] {
		return
	}
	var zero T
	d.items[slot] = zero
	d.valid[slot] = false
	d.set(slot, 0)
	d.free = append(d.free, slot)
	d.n--
}

// Len is the number of stored items.
func (d *Dynamic[T]) Len() int {
	return d.n
}

// Total is the sum of all weights.
func (d *Dynamic[T]) Total() float64 {
	return d.tree[1]
}

// Sample draws an item with probability proportional to its weight. It
// returns false when the sampler holds no positive weight.
func (d *Dynamic[T]) Sample(rng RNG) (T, bool) {
	var zero T
	if d.n == 0 || d.tree[1] <= 0 {
		return zero, false
	}
	u := rng.Float64() * d.tree[1]
	i := 1
	leaves := d.capacity()
	for i < leaves {
		l := 2 * i
		if u < d.tree[l] || d.tree[l+1] <= 0 {
			i = l
		} else {
			u -= d.tree[l]
			i = l + 1
		}
	}
	slot := i - leaves
	if slot >= d.size || !d.valid[slot] {
		// rounding pushed us onto an empty leaf; fall back to a linear scan
		for s := d.size - 1; s >= 0; s-- {
			if d.valid[s] && d.tree[s+leaves] > 0 {
				return d.items[s], true
			}
		}
		return zero, false
	}
	return d.items[slot], true
}

// Clone returns a deep copy.
func (d *Dynamic[T]) Clone() *Dynamic[T] {
	c := &Dynamic[T]{
		items: append([]T(nil), d.items...),
		valid: append([]bool(nil), d.valid...),
		tree:  append([]float64(nil), d.tree...),
		free:  append([]int(nil), d.free...),
		size:  d.size,
		n:     d.n,
	}
	return c
}

func (d *Dynamic[T]) set(slot int, w float64) {
	i := slot + d.capacity()
	delta := w - d.tree[i]
	for ; i >= 1; i /= 2 {
		d.tree[i] += delta
	}
}

func (d *Dynamic[T]) grow() {
	oldCap := d.capacity()
	newCap := 2 * oldCap
	tree := make([]float64, 2*newCap)
	copy(tree[newCap:newCap+oldCap], d.tree[oldCap:2*oldCap])
	for i := newCap - 1; i >= 1; i-- {
		tree[i] = tree[2*i] + tree[2*i+1]
	}
	d.tree = tree
}
