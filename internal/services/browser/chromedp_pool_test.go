package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// fakeInstances stands in for launched Chrome processes
func fakeInstances(p *ChromeDPPool, n int) {
	for i := 0; i < n; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		p.instances = append(p.instances, &chromeInstance{ctx: ctx, cancel: cancel, allocCancel: func() {}})
	}
	p.started = true
}

func TestChromeDPPool_LeaseBeforeStart(t *testing.T) {
	p := NewChromeDPPool(ChromeDPPoolConfig{MaxInstances: 2}, arbor.NewLogger())
	_, _, err := p.Lease()
	require.Error(t, err)
	assert.False(t, p.Stats().Started)
}

func TestChromeDPPool_StartRejectsEmptyPool(t *testing.T) {
	p := NewChromeDPPool(ChromeDPPoolConfig{}, arbor.NewLogger())
	assert.Error(t, p.Start(context.Background()))
}

func TestChromeDPPool_LeaseSpreadsLoad(t *testing.T) {
	p := NewChromeDPPool(ChromeDPPoolConfig{MaxInstances: 2}, arbor.NewLogger())
	fakeInstances(p, 2)

	ctxA, releaseA, err := p.Lease()
	require.NoError(t, err)
	ctxB, releaseB, err := p.Lease()
	require.NoError(t, err)
	assert.NotSame(t, ctxA, ctxB)
	assert.Equal(t, 2, p.Stats().Leased)

	releaseA()
	releaseA()
	assert.Equal(t, 1, p.Stats().Leased)

	// The freed instance is the least busy one
	ctxC, releaseC, err := p.Lease()
	require.NoError(t, err)
	assert.Same(t, ctxA, ctxC)

	releaseB()
	releaseC()
	assert.Equal(t, 0, p.Stats().Leased)
}

func TestChromeDPPool_Shutdown(t *testing.T) {
	p := NewChromeDPPool(ChromeDPPoolConfig{MaxInstances: 1}, arbor.NewLogger())
	fakeInstances(p, 1)
	ctx := p.instances[0].ctx

	require.NoError(t, p.Shutdown())
	assert.Error(t, ctx.Err())
	assert.Equal(t, PoolStats{}, p.Stats())
	require.NoError(t, p.Shutdown())
}
