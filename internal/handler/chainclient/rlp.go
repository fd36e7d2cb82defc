package chainclient

import "math/big"

// Minimal RLP encoder, just enough to serialize a legacy EVM transaction
// for signing and broadcast. No pack dependency ships RLP outside of
// go-ethereum itself (which was not the chosen teacher); the encoding is
// a small, fully-specified binary format, so it is hand-rolled here rather
// than vendoring an unrelated ethereum client library for one function
// (see DESIGN.md).

func rlpEncodeList(items ...[]byte) []byte {
	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	return rlpWrapList(payload)
}

func rlpWrapList(payload []byte) []byte {
	return append(rlpLengthPrefix(0xc0, 0xf7, payload), payload...)
}

func rlpEncodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	return append(rlpLengthPrefix(0x80, 0xb7, b), b...)
}

func rlpEncodeUint64(v uint64) []byte {
	if v == 0 {
		return []byte{0x80}
	}
	return rlpEncodeBytes(trimLeadingZeros(big.NewInt(0).SetUint64(v).Bytes()))
}

func rlpEncodeBigInt(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return []byte{0x80}
	}
	return rlpEncodeBytes(trimLeadingZeros(v.Bytes()))
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

// rlpLengthPrefix produces the header byte(s) for a string/list payload,
// per RLP's short-form (length < 56) and long-form (length-of-length)
// encoding rules.
func rlpLengthPrefix(shortBase, longBase byte, payload []byte) []byte {
	n := len(payload)
	if n < 56 {
		return []byte{shortBase + byte(n)}
	}
	lenBytes := trimLeadingZeros(big.NewInt(int64(n)).Bytes())
	out := make([]byte, 0, len(lenBytes)+1)
	out = append(out, longBase+byte(len(lenBytes)))
	out = append(out, lenBytes...)
	return out
}
