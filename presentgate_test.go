package hmdlink

import (
	"testing"

	"github.com/motionreality/hmdlink/hgpu"
	"github.com/motionreality/hmdlink/hgpu/hgputest"
	"github.com/stretchr/testify/require"
)

func importSet(t *testing.T, dev *hgputest.Device, handles ...hgpu.SharedHandle) *bufferSet {
	t.Helper()

	set := &bufferSet{}
	for _, h := range handles {
		tex, err := importTexture(dev, h)
		require.NoError(t, err)
		set.textures = append(set.textures, tex)
	}
	return set
}

func TestImportedTextureLifecycle(t *testing.T) {
	t.Parallel()

	dev := hgputest.NewDevice()

	tex, err := importTexture(dev, 0x42)
	require.NoError(t, err)

	m := dev.OpenedTexture(0).Mutex()

	require.NoError(t, tex.acquire())
	require.True(t, m.Held())

	// The key is single-owner; a second acquire by the same owner
	// is a bookkeeping bug, not a blocking wait.
	require.Error(t, tex.acquire())
	require.Equal(t, 1, m.Acquires())

	require.NoError(t, tex.release())
	require.False(t, m.Held())
	require.Error(t, tex.release())

	require.NoError(t, tex.close())
	require.True(t, dev.OpenedTexture(0).Released())
	require.True(t, m.RefDropped())
}

func TestImportedTextureCloseReleasesHeldKey(t *testing.T) {
	t.Parallel()

	dev := hgputest.NewDevice()

	tex, err := importTexture(dev, 7)
	require.NoError(t, err)
	require.NoError(t, tex.acquire())

	require.NoError(t, tex.close())

	m := dev.OpenedTexture(0).Mutex()
	require.Equal(t, m.Acquires(), m.Releases())
	require.True(t, m.RefDropped())
}

func TestImportTextureFailures(t *testing.T) {
	t.Parallel()

	dev := hgputest.NewDevice()
	dev.FailOpen(1, hgpu.ErrInvalidHandle)
	dev.DenyKeyedMutex(2)

	_, err := importTexture(dev, 1)
	require.ErrorIs(t, err, hgpu.ErrInvalidHandle)
	require.Empty(t, dev.OpenedTextures())

	// A texture without a keyed mutex cannot participate in the
	// hand-off; the opened reference must not leak.
	_, err = importTexture(dev, 2)
	require.ErrorIs(t, err, hgpu.ErrNoKeyedMutex)
	require.True(t, dev.OpenedTexture(0).Released())
}

func TestPresentGateHandOff(t *testing.T) {
	t.Parallel()

	dev := hgputest.NewDevice()

	g := newPresentGate()
	g.install([]*bufferSet{
		importSet(t, dev, 10, 11),
		importSet(t, dev, 12, 13),
	})
	require.Equal(t, 2, g.setCount())

	mutex := func(i int) *hgputest.KeyedMutex {
		return dev.OpenedTexture(i).Mutex()
	}

	// First present: set 0 is acquired and nothing is released,
	// because no set was active before it.
	require.NoError(t, g.beginPresent(0))
	require.NoError(t, g.finishPresent(0))
	require.True(t, mutex(0).Held())
	require.True(t, mutex(1).Held())
	require.False(t, mutex(2).Held())

	// Second present: set 1 is acquired, and exactly set 0
	// is handed back.
	require.NoError(t, g.beginPresent(1))
	require.NoError(t, g.finishPresent(1))
	require.False(t, mutex(0).Held())
	require.False(t, mutex(1).Held())
	require.True(t, mutex(2).Held())
	require.True(t, mutex(3).Held())

	// Teardown balances every texture and drops both references.
	require.NoError(t, g.close())
	for i := 0; i < 4; i++ {
		m := mutex(i)
		require.Equal(t, m.Acquires(), m.Releases(), "texture %d", i)
		require.True(t, m.RefDropped(), "texture %d", i)
		require.True(t, dev.OpenedTexture(i).Released(), "texture %d", i)
	}
}

func TestPresentGateSameSetTwice(t *testing.T) {
	t.Parallel()

	dev := hgputest.NewDevice()

	g := newPresentGate()
	g.install([]*bufferSet{importSet(t, dev, 20, 21)})

	require.NoError(t, g.beginPresent(0))
	require.NoError(t, g.finishPresent(0))

	// Re-presenting the only set: it is already held by the server,
	// so the acquire is rejected by the held-state bookkeeping and,
	// critically, the set is not handed back to the client.
	require.Error(t, g.beginPresent(0))
	require.NoError(t, g.finishPresent(0))

	m := dev.OpenedTexture(0).Mutex()
	require.True(t, m.Held())
	require.Equal(t, 1, m.Acquires())

	require.NoError(t, g.close())
	require.Equal(t, m.Acquires(), m.Releases())
}

func TestPresentGateRegistrationBracket(t *testing.T) {
	t.Parallel()

	dev := hgputest.NewDevice()
	set := importSet(t, dev, 30, 31)

	// Registration holds every key around the pipeline call
	// and gives them all straight back.
	require.NoError(t, set.acquireAll())
	require.NoError(t, set.releaseAll())

	for i := 0; i < 2; i++ {
		m := dev.OpenedTexture(i).Mutex()
		require.Equal(t, 1, m.Acquires())
		require.Equal(t, 1, m.Releases())
		require.False(t, m.Held())
	}

	require.NoError(t, set.close())
}
