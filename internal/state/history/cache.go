package history

// Cache memoizes materialized states by history index.
//
// It is purely an optimization: correctness must hold with no cache at
// all, and the store invalidates entries whenever any snapshot at or
// before a cached index changes.
type Cache interface {
	Get(index int) (State, bool)
	Put(index int, state State)
	Drop(index int)
	Clear()
}

// MapCache is a map-backed Cache.
type MapCache struct {
	states map[int]State
}

// NewMapCache creates an empty materialization cache.
func NewMapCache() *MapCache {
	return &MapCache{states: make(map[int]State)}
}

// Get returns the cached state for an index.
func (c *MapCache) Get(index int) (State, bool) {
	state, ok := c.states[index]
	return state, ok
}

// Put stores the state for an index.
func (c *MapCache) Put(index int, state State) {
	c.states[index] = state
}

// Drop removes the entry for an index.
func (c *MapCache) Drop(index int) {
	delete(c.states, index)
}

// Clear removes every entry.
func (c *MapCache) Clear() {
	c.states = make(map[int]State)
}
