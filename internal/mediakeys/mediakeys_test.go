package mediakeys

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFire_OnlyWhenStarted(t *testing.T) {
	var got []Key
	h := New(func(k Key) { got = append(got, k) })

	assert.False(t, h.fire(Stop))
	h.started.Store(true)
	assert.True(t, h.fire(Next))
	assert.Equal(t, []Key{Next}, got)

	assert.False(t, New(nil).fire(Stop))
}

func TestStart_UnsupportedPlatform(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook is supported on windows")
	}
	h := New(func(Key) {})
	require.ErrorIs(t, h.Start(), ErrUnsupported)
	assert.NoError(t, h.Close())
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "stop", Stop.String())
	assert.Equal(t, "play/pause", PlayPause.String())
	assert.Equal(t, "next", Next.String())
	assert.Equal(t, "unknown", Key(0).String())
}
