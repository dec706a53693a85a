package cell

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/boc"
)

func sampleTree(t *testing.T) *Cell {
	t.Helper()
	shared := BeginCell().StoreUint(0xabc, 12).MustBuild()
	left := BeginCell().StoreUint(1, 1).StoreRef(shared).MustBuild()
	right := BeginCell().StoreBytes([]byte("right")).StoreRef(shared).MustBuild()
	return BeginCell().
		StoreUint(0x0f, 8).
		StoreTailString("ipfs://bafy/metadata.json").
		StoreRef(left).
		StoreRef(right).
		MustBuild()
}

func TestSerializeRoundTrip(t *testing.T) {
	root := sampleTree(t)
	b, err := Serialize(root)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xb5, 0xee, 0x9c, 0x72}, b[:4])

	roots, err := Parse(b)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.True(t, root.Equal(roots[0]))
	assert.Equal(t, root.Hash(), roots[0].Hash())

	// the shared leaf is written once: root, left, right, shared
	assert.Equal(t, byte(4), b[6])
}

func TestSerializeDeterministic(t *testing.T) {
	a, err := Serialize(sampleTree(t))
	require.NoError(t, err)
	b, err := Serialize(sampleTree(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBase64RoundTrip(t *testing.T) {
	root := sampleTree(t)
	s, err := ToBase64(root)
	require.NoError(t, err)
	roots, err := ParseBase64(s)
	require.NoError(t, err)
	assert.Equal(t, root.Hash(), roots[0].Hash())
}

func TestBocSnapshot(t *testing.T) {
	root := sampleTree(t)
	raw := root.Boc()
	h, err := raw.Hash()
	require.NoError(t, err)
	assert.Equal(t, root.Hash(), h)

	// writes to the exported copy do not reach the cell
	require.NoError(t, raw.WriteUint(1, 1))
	back, err := FromBoc(raw)
	require.NoError(t, err)
	assert.False(t, back.Equal(root))
	assert.Equal(t, root.BitLen()+1, back.BitLen())

	_, err = FromBoc(nil)
	require.ErrorIs(t, err, ErrNilRef)
}

func TestParseRejectsCorruption(t *testing.T) {
	raw, err := Serialize(sampleTree(t))
	require.NoError(t, err)

	flipped := append([]byte(nil), raw...)
	flipped[len(flipped)/2] ^= 0x01
	_, err = Parse(flipped)
	require.ErrorIs(t, err, ErrMalformedContainer)

	for _, n := range []int{0, 3, 6, len(raw) / 2, len(raw) - 1} {
		_, err = Parse(raw[:n])
		require.ErrorIs(t, err, ErrMalformedContainer, n)
	}

	bad := append([]byte{0xde, 0xad, 0xbe, 0xef}, raw[4:]...)
	_, err = Parse(bad)
	require.ErrorIs(t, err, ErrMalformedContainer)

	_, err = ParseBase64("not base64 at all!")
	require.ErrorIs(t, err, ErrMalformedContainer)
}

func TestParseWithoutCrc(t *testing.T) {
	// one empty root cell, no index, no checksum
	raw, err := hex.DecodeString("b5ee9c7201010101000200" + "0000")
	require.NoError(t, err)

	_, err = Parse(raw[:11])
	require.ErrorIs(t, err, ErrMalformedContainer)

	roots, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, Empty().Hash(), roots[0].Hash())
}

func TestTongoInterop(t *testing.T) {
	root := sampleTree(t)
	raw, err := Serialize(root)
	require.NoError(t, err)

	theirs, err := boc.DeserializeBoc(raw)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	h, err := theirs[0].Hash()
	require.NoError(t, err)
	assert.Equal(t, root.Hash(), h)

	tc := boc.NewCell()
	require.NoError(t, tc.WriteUint(0x1234, 16))
	child := boc.NewCell()
	require.NoError(t, child.WriteUint(5, 3))
	require.NoError(t, tc.AddRef(child))
	tb, err := tc.ToBoc()
	require.NoError(t, err)

	ours, err := ParseOne(tb)
	require.NoError(t, err)
	th, err := tc.Hash()
	require.NoError(t, err)
	assert.Equal(t, th, ours.Hash())

	mine := BeginCell().StoreUint(0x1234, 16).StoreRef(BeginCell().StoreUint(5, 3).MustBuild()).MustBuild()
	assert.Equal(t, th, mine.Hash())
}
