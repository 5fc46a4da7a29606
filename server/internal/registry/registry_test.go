package registry_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorrelay/sensorrelay/server/internal/registry"
)

type fakeConn struct {
	id     string
	closed atomic.Bool
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) Send(_ []byte) bool     { return c.IsOpen() }
func (c *fakeConn) SendWait(_ []byte) bool { return c.IsOpen() }
func (c *fakeConn) IsOpen() bool           { return !c.closed.Load() }

func visited(r *registry.Registry) []string {
	var ids []string
	r.ForEachLive(func(c registry.Conn) { ids = append(ids, c.ID()) })
	return ids
}

func TestRegister_Idempotent(t *testing.T) {
	r := registry.New()
	c := newConn("a")

	r.Register(c)
	r.Register(c)

	assert.Equal(t, 1, r.Count())
	assert.True(t, r.Contains(c))
}

func TestUnregister_Idempotent(t *testing.T) {
	r := registry.New()
	c := newConn("a")
	r.Register(c)

	assert.True(t, r.Unregister(c))
	assert.False(t, r.Unregister(c))
	assert.False(t, r.Unregister(newConn("never-registered")))
	assert.Equal(t, 0, r.Count())
}

func TestForEachLive_SkipsClosedWithoutRemoving(t *testing.T) {
	r := registry.New()
	a, b, c := newConn("a"), newConn("b"), newConn("c")
	r.Register(a)
	r.Register(b)
	r.Register(c)
	b.closed.Store(true)

	assert.ElementsMatch(t, []string{"a", "c"}, visited(r))
	assert.Equal(t, 3, r.Count(), "ForEachLive must not prune")
	assert.True(t, r.Contains(b))
}

func TestForEachLive_CallbackMayMutateRegistry(t *testing.T) {
	r := registry.New()
	a := newConn("a")
	r.Register(a)

	r.ForEachLive(func(c registry.Conn) { r.Unregister(c) })

	assert.Equal(t, 0, r.Count())
}

func TestSweep_RemovesOnlyClosed(t *testing.T) {
	r := registry.New()
	a, b := newConn("a"), newConn("b")
	r.Register(a)
	r.Register(b)
	a.closed.Store(true)

	removed := r.Sweep()

	require.Len(t, removed, 1)
	assert.Equal(t, "a", removed[0].ID())
	assert.False(t, r.Contains(a))
	assert.True(t, r.Contains(b))
	assert.Empty(t, r.Sweep(), "second sweep finds nothing")
}

func TestConcurrentOps(t *testing.T) {
	r := registry.New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		c := newConn("c")
		wg.Add(3)
		go func() {
			defer wg.Done()
			r.Register(c)
		}()
		go func() {
			defer wg.Done()
			r.ForEachLive(func(registry.Conn) {})
		}()
		go func() {
			defer wg.Done()
			c.closed.Store(true)
			r.Sweep()
		}()
	}
	wg.Wait()
	r.Sweep()
	assert.Equal(t, 0, r.Count())
}
