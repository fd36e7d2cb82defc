package chainclient

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRlpEncodeUint64Zero(t *testing.T) {
	assert.Equal(t, []byte{0x80}, rlpEncodeUint64(0))
}

func TestRlpEncodeUint64Small(t *testing.T) {
	// single byte < 0x80 encodes as itself, per RLP's single-byte shortcut.
	assert.Equal(t, []byte{0x01}, rlpEncodeUint64(1))
	assert.Equal(t, []byte{0x7f}, rlpEncodeUint64(0x7f))
}

func TestRlpEncodeUint64Medium(t *testing.T) {
	got := rlpEncodeUint64(0x80)
	assert.Equal(t, []byte{0x81, 0x80}, got)
}

func TestRlpEncodeBigIntNil(t *testing.T) {
	assert.Equal(t, []byte{0x80}, rlpEncodeBigInt(nil))
	assert.Equal(t, []byte{0x80}, rlpEncodeBigInt(big.NewInt(0)))
}

func TestRlpEncodeBytesShort(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03}
	got := rlpEncodeBytes(b)
	assert.Equal(t, append([]byte{0x80 + 3}, b...), got)
}

func TestRlpEncodeBytesSingleLowByte(t *testing.T) {
	got := rlpEncodeBytes([]byte{0x05})
	assert.Equal(t, []byte{0x05}, got)
}

func TestRlpEncodeBytesLong(t *testing.T) {
	b := make([]byte, 60)
	for i := range b {
		b[i] = 0xff
	}
	got := rlpEncodeBytes(b)
	// 60 bytes needs the long-form header: 0xb7+1 length byte, then payload.
	assert.Equal(t, byte(0xb7+1), got[0])
	assert.Equal(t, byte(60), got[1])
	assert.Equal(t, b, got[2:])
}

func TestTrimLeadingZeros(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x02}, trimLeadingZeros([]byte{0x00, 0x00, 0x01, 0x02}))
	assert.Equal(t, []byte{}, trimLeadingZeros([]byte{0x00, 0x00}))
}

func TestRlpEncodeList(t *testing.T) {
	item := rlpEncodeUint64(1)
	got := rlpEncodeList(item, item)
	assert.Equal(t, byte(0xc0+2), got[0])
	assert.Equal(t, []byte{0x01, 0x01}, got[1:])
}
