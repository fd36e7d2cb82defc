// Package secrets implements at-rest encryption of private keys and
// provider API credentials (spec.md §3: "AES (EAX, 16-byte random nonce
// appended to ciphertext) under a process-wide secret key"), plus loading
// that process-wide key either directly from configuration or from AWS
// Secrets Manager.
//
// No pack dependency, and no library in wide ecosystem use, ships a Go EAX
// mode, so EAX is built here directly on crypto/aes + crypto/cipher (CTR
// keystream) and an AES-CMAC (OMAC1) authenticator, per DESIGN.md's
// standard-library justification. Both CTR and CMAC are themselves
// published NIST constructions, not invented primitives.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"

	"github.com/pkg/errors"
)

const nonceSize = 16

// Box encrypts/decrypts with a single process-wide AES key.
type Box struct {
	key []byte
}

func NewBox(key []byte) (*Box, error) {
	if len(key) != 32 {
		return nil, errors.Errorf("db secret key must be 32 bytes, got %d", len(key))
	}
	return &Box{key: key}, nil
}

// Seal encrypts plaintext and appends a 16-byte random nonce, matching the
// Python source's "nonce appended to ciphertext" layout.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "generating nonce")
	}
	ct, tag, err := eaxEncrypt(b.key, nonce, plaintext, nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(ct)+len(tag)+nonceSize)
	out = append(out, ct...)
	out = append(out, tag...)
	out = append(out, nonce...)
	return out, nil
}

// Open reverses Seal. blob = ciphertext || tag(16) || nonce(16).
func (b *Box) Open(blob []byte) ([]byte, error) {
	if len(blob) < nonceSize+blockSize {
		return nil, errors.New("ciphertext too short for eax envelope")
	}
	nonce := blob[len(blob)-nonceSize:]
	tag := blob[len(blob)-nonceSize-blockSize : len(blob)-nonceSize]
	ct := blob[:len(blob)-nonceSize-blockSize]
	pt, err := eaxDecrypt(b.key, nonce, ct, tag, nil)
	if err != nil {
		return nil, err
	}
	return pt, nil
}

const blockSize = aes.BlockSize

// eaxEncrypt implements RFC-style EAX mode: three OMAC1 instances tagged
// 0 (nonce), 1 (header), 2 (ciphertext), CTR keystream derived from the
// OMAC of the nonce, tag = N xor H xor C.
func eaxEncrypt(key, nonce, plaintext, header []byte) (ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	n := omac(block, 0, nonce)
	h := omac(block, 1, header)

	ctr := cipher.NewCTR(block, n)
	ciphertext = make([]byte, len(plaintext))
	ctr.XORKeyStream(ciphertext, plaintext)

	c := omac(block, 2, ciphertext)

	tag = make([]byte, blockSize)
	for i := range tag {
		tag[i] = n[i] ^ h[i] ^ c[i]
	}
	return ciphertext, tag, nil
}

func eaxDecrypt(key, nonce, ciphertext, tag, header []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	n := omac(block, 0, nonce)
	h := omac(block, 1, header)
	c := omac(block, 2, ciphertext)

	want := make([]byte, blockSize)
	for i := range want {
		want[i] = n[i] ^ h[i] ^ c[i]
	}
	if subtle.ConstantTimeCompare(want, tag) != 1 {
		return nil, errors.New("eax: authentication failed")
	}

	ctr := cipher.NewCTR(block, n)
	plaintext := make([]byte, len(ciphertext))
	ctr.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// omac computes AES-CMAC (OMAC1) over tagByte || msg, per NIST SP 800-38B.
func omac(block cipher.Block, tagByte byte, msg []byte) []byte {
	k1, k2 := subkeys(block)

	prefixed := make([]byte, blockSize+len(msg))
	prefixed[blockSize-1] = tagByte
	copy(prefixed[blockSize:], msg)

	return cmac(block, k1, k2, prefixed)
}

func subkeys(block cipher.Block) (k1, k2 []byte) {
	zero := make([]byte, blockSize)
	l := make([]byte, blockSize)
	block.Encrypt(l, zero)

	k1 = gfDouble(l)
	k2 = gfDouble(k1)
	return
}

func gfDouble(in []byte) []byte {
	out := make([]byte, len(in))
	var carry byte
	for i := len(in) - 1; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = in[i] >> 7
	}
	if in[0]&0x80 != 0 {
		out[len(out)-1] ^= 0x87
	}
	return out
}

func cmac(block cipher.Block, k1, k2, msg []byte) []byte {
	n := (len(msg) + blockSize - 1) / blockSize
	if n == 0 {
		n = 1
	}
	lastComplete := len(msg)%blockSize == 0 && len(msg) != 0

	var mLast []byte
	full := msg[:(n-1)*blockSize]
	tailStart := (n - 1) * blockSize
	tail := append([]byte{}, msg[tailStart:]...)

	if lastComplete {
		mLast = xorBytes(tail, k1)
	} else {
		padded := make([]byte, blockSize)
		copy(padded, tail)
		padded[len(tail)] = 0x80
		mLast = xorBytes(padded, k2)
	}

	x := make([]byte, blockSize)
	for i := 0; i+blockSize <= len(full); i += blockSize {
		y := xorBytes(x, full[i:i+blockSize])
		block.Encrypt(x, y)
	}
	y := xorBytes(x, mLast)
	out := make([]byte, blockSize)
	block.Encrypt(out, y)
	return out
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, blockSize)
	for i := 0; i < blockSize; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}
