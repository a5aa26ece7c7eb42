package lobby

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/rushlobby/internal/catalog"
)

func sequenceIDs(ids ...string) IDGenerator {
	var mu sync.Mutex
	i := 0
	return IDFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id
	})
}

func TestRegistry_RegisterLookup(t *testing.T) {
	r := NewRegistry(UUIDGenerator())
	s, _ := NewSession("Alice", &catalog.Settings{}, false, nil)

	id := r.Register(s)
	require.NotEmpty(t, id)
	assert.Equal(t, id, s.ID)

	got, err := r.Lookup(id)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RegenerateOnCollision(t *testing.T) {
	r := NewRegistry(sequenceIDs("a", "a", "a", "b"))
	s1, _ := NewSession("Alice", &catalog.Settings{}, false, nil)
	s2, _ := NewSession("Bob", &catalog.Settings{}, false, nil)

	assert.Equal(t, "a", r.Register(s1))
	assert.Equal(t, "b", r.Register(s2))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry(UUIDGenerator())
	_, err := r.Lookup("missing")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeSessionNotFound))
	assert.Equal(t, "missing", AsError(err).Data["sessionId"])
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := NewRegistry(UUIDGenerator())
	s, _ := NewSession("Alice", &catalog.Settings{}, false, nil)
	id := r.Register(s)

	r.Unregister(id)
	r.Unregister(id)
	r.Unregister("never-existed")

	_, err := r.Lookup(id)
	assert.True(t, IsCode(err, CodeSessionNotFound))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := NewRegistry(UUIDGenerator())
	const n = 100
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _ := NewSession(fmt.Sprintf("p%d", i), &catalog.Settings{}, false, nil)
			ids[i] = r.Register(s)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, n, r.Len())
}
