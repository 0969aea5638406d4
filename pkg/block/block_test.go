package block_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ironpeak/raidsync/pkg/block"
)

func TestHasFile(t *testing.T) {
	cases := []struct {
		state block.State
		want  bool
	}{
		{block.Empty, false},
		{block.Blk, true},
		{block.Chg, true},
		{block.New, true},
		{block.Deleted, false},
	}
	for _, c := range cases {
		b := block.Block{State: c.state}
		assert.Equal(t, c.want, b.HasFile(), c.state.String())
	}
}

func TestHasInvalidParity(t *testing.T) {
	assert.False(t, block.Block{State: block.Blk}.HasInvalidParity(false))
	assert.True(t, block.Block{State: block.Blk}.HasInvalidParity(true), "bad flag forces invalid parity")
	assert.True(t, block.Block{State: block.Chg}.HasInvalidParity(false))
	assert.True(t, block.Block{State: block.New}.HasInvalidParity(false))
	assert.True(t, block.Block{State: block.Deleted}.HasInvalidParity(false))
	assert.False(t, block.Block{State: block.Empty}.HasInvalidParity(false))
}

func TestHasSamePresence(t *testing.T) {
	assert.True(t, block.Block{State: block.Blk}.HasSamePresence())
	assert.True(t, block.Block{State: block.Chg}.HasSamePresence())
	assert.False(t, block.Block{State: block.New}.HasSamePresence())
	assert.False(t, block.Block{State: block.Deleted}.HasSamePresence())
}

func TestHasUpdatedHash(t *testing.T) {
	assert.True(t, block.Block{State: block.Blk}.HasUpdatedHash())
	assert.False(t, block.Block{State: block.Chg}.HasUpdatedHash())
	assert.False(t, block.Block{State: block.New}.HasUpdatedHash())
}

func TestHasAnyHash(t *testing.T) {
	assert.True(t, block.Block{State: block.Blk}.HasAnyHash())
	assert.True(t, block.Block{State: block.Chg, HashValid: true}.HasAnyHash())
	assert.False(t, block.Block{State: block.Chg, HashValid: false}.HasAnyHash())
	assert.False(t, block.Block{State: block.New}.HasAnyHash())
}

func TestInfoRoundTrip(t *testing.T) {
	now := int64(1_700_000_000)
	i := block.MakeInfo(now, false, true)
	assert.Equal(t, now, i.Time())
	assert.False(t, i.Bad())
	assert.True(t, i.Rehash())

	bad := i.SetBad()
	assert.True(t, bad.Bad())
	assert.True(t, bad.Rehash(), "SetBad must not disturb other flags")
	assert.Equal(t, now, bad.Time())

	cleared := bad.ClearFlags()
	assert.False(t, cleared.Bad())
	assert.False(t, cleared.Rehash())
	assert.Equal(t, now, cleared.Time())
}
