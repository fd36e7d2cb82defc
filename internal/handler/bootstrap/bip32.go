package bootstrap

// bip32 implements the minimal hardened-child-key-derivation slice of
// BIP32 needed to turn one admin seed phrase into a deterministic sequence
// of SADMIN/APPROVE private keys. The pack carries no BIP32 HD
// wallet library (hdkeychain lives in btcsuite/btcutil, which none of the
// retrieved repos import), so derivation is built directly on
// crypto/hmac + crypto/sha512 and the already-wired btcec curve, per
// DESIGN.md's standard-library justification for this one piece.

import (
	"crypto/hmac"
	"crypto/sha512"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

var curveOrder = btcec.S256().N

type extendedKey struct {
	key       []byte // 32 bytes
	chainCode []byte // 32 bytes
}

// masterKeyFromSeed implements BIP32's "Master key generation": HMAC-SHA512
// keyed by "Bitcoin seed" over the BIP39 seed bytes.
func masterKeyFromSeed(seed []byte) *extendedKey {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return &extendedKey{key: sum[:32], chainCode: sum[32:]}
}

// deriveHardened computes CKDpriv for a hardened child index (>= 2^31),
// the only derivation direction this package needs: every handler-managed
// key is a hardened child of the master so a leaked child key never
// exposes sibling keys (BIP32's rationale for hardened derivation).
func (k *extendedKey) deriveHardened(index uint32) *extendedKey {
	hardenedIndex := index | 0x80000000
	data := make([]byte, 0, 37)
	data = append(data, 0x00)
	data = append(data, k.key...)
	data = append(data, byte(hardenedIndex>>24), byte(hardenedIndex>>16), byte(hardenedIndex>>8), byte(hardenedIndex))

	mac := hmac.New(sha512.New, k.chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)

	il := new(big.Int).SetBytes(sum[:32])
	parent := new(big.Int).SetBytes(k.key)
	child := new(big.Int).Mod(new(big.Int).Add(il, parent), curveOrder)

	childKey := make([]byte, 32)
	b := child.Bytes()
	copy(childKey[32-len(b):], b)

	return &extendedKey{key: childKey, chainCode: sum[32:]}
}

// deriveAccountKey derives the purely-hardened path m/<role>'/<index>'
// used to fan one seed out into every SADMIN/APPROVE key the handler needs
// (path choice is this codebase's own convention, not a standard BIP44
// path, since the handler is not a wallet).
func deriveAccountKey(seed []byte, role, index uint32) []byte {
	k := masterKeyFromSeed(seed)
	k = k.deriveHardened(role)
	k = k.deriveHardened(index)
	return k.key
}
