package websocket

import (
	"encoding/binary"
	"math/bits"
	"strconv"
	"testing"

	"github.com/gobwas/ws"

	"github.com/wsengine/websocket/internal/test/assert"
	"github.com/wsengine/websocket/internal/test/xrand"
)

func Test_mask(t *testing.T) {
	t.Parallel()

	key := []byte{0xa, 0xb, 0xc, 0xff}
	key32 := binary.LittleEndian.Uint32(key)
	p := []byte{0xa, 0xb, 0xc, 0xf2, 0xc}
	gotKey32 := mask(key32, p)

	expP := []byte{0, 0, 0, 0x0d, 0x6}
	assert.Equal(t, "p", expP, p)

	expKey32 := bits.RotateLeft32(key32, -8)
	assert.Equal(t, "key32", expKey32, gotKey32)
}

func Test_maskRFCExample(t *testing.T) {
	t.Parallel()

	// Example 2 from https://tools.ietf.org/html/rfc6455#section-5.7
	key := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	p := []byte{0x7f, 0x9f, 0x4d, 0x51, 0x58}

	mask(binary.LittleEndian.Uint32(key[:]), p)
	assert.Equal(t, "unmasked", "Hello", string(p))
}

func Test_maskGobwas(t *testing.T) {
	t.Parallel()

	sizes := []int{0, 1, 3, 4, 7, 8, 15, 31, 32, 33, 63, 64, 100, 1000, 4096 + 3}
	for _, n := range sizes {
		n := n
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			t.Parallel()

			var key [4]byte
			copy(key[:], xrand.Bytes(4))
			p := xrand.Bytes(n)

			got := append([]byte(nil), p...)
			mask(binary.LittleEndian.Uint32(key[:]), got)

			exp := append([]byte(nil), p...)
			ws.Cipher(exp, key, 0)
			assert.Equal(t, "masked", exp, got)

			// Masking is an involution.
			mask(binary.LittleEndian.Uint32(key[:]), got)
			assert.Equal(t, "unmasked", p, got)
		})
	}
}

func Test_maskContinues(t *testing.T) {
	t.Parallel()

	var key [4]byte
	copy(key[:], xrand.Bytes(4))
	key32 := binary.LittleEndian.Uint32(key[:])
	p := xrand.Bytes(103)

	whole := append([]byte(nil), p...)
	mask(key32, whole)

	split := append([]byte(nil), p...)
	k := mask(key32, split[:37])
	mask(k, split[37:])

	assert.Equal(t, "masked", whole, split)
}

func BenchmarkMask(b *testing.B) {
	sizes := []int{8, 16, 32, 128, 512, 4096, 16384}
	key := [4]byte{1, 2, 3, 4}
	key32 := binary.LittleEndian.Uint32(key[:])

	for _, size := range sizes {
		p := make([]byte, size)
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			b.Run("websocket", func(b *testing.B) {
				b.SetBytes(int64(size))
				for i := 0; i < b.N; i++ {
					mask(key32, p)
				}
			})
			b.Run("gobwas", func(b *testing.B) {
				b.SetBytes(int64(size))
				for i := 0; i < b.N; i++ {
					ws.Cipher(p, key, 0)
				}
			})
		})
	}
}
