package chainclient

import (
	"encoding/hex"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// keccak256 is the hash legacy EVM transactions and addresses are built
// from. golang.org/x/crypto is a pack dependency (every repo's go.mod
// carries it); its sha3 subpackage is the idiomatic source of Keccak-256
// in Go, the same family go-ethereum itself vendors.
func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// addressFromPrivateKey derives the lowercase-hex "0x..." EVM address for
// a raw secp256k1 private key, used when bootstrapping SADMIN/APPROVE
// accounts and when the scanner needs to compare a decoded sender against
// a known handler address.
func addressFromPrivateKey(key []byte) (string, error) {
	priv, pub := btcec.PrivKeyFromBytes(key)
	_ = priv
	pubBytes := pub.SerializeUncompressed()[1:] // drop the 0x04 prefix
	hash := keccak256(pubBytes)
	return "0x" + hex.EncodeToString(hash[12:]), nil
}

type legacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	GasLimit uint64
	To       []byte // 20 bytes, nil for contract creation (unused here)
	Value    *big.Int
	Data     []byte
}

// signLegacyTx RLP-encodes, hashes, and ECDSA-signs an EIP-155 legacy
// transaction, returning the raw signed hex ready for eth_sendRawTransaction.
func signLegacyTx(tx legacyTx, signerKey []byte, chainID int64) (string, error) {
	unsigned := rlpEncodeList(
		rlpEncodeUint64(tx.Nonce),
		rlpEncodeBigInt(tx.GasPrice),
		rlpEncodeUint64(tx.GasLimit),
		rlpEncodeBytes(tx.To),
		rlpEncodeBigInt(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeUint64(uint64(chainID)),
		rlpEncodeUint64(0),
		rlpEncodeUint64(0),
	)
	hash := keccak256(unsigned)

	priv, _ := btcec.PrivKeyFromBytes(signerKey)
	sig, err := signRecoverable(priv, hash)
	if err != nil {
		return "", errors.Wrap(err, "signing transaction")
	}

	v := big.NewInt(int64(sig.recoveryID) + 35 + chainID*2)
	signed := rlpEncodeList(
		rlpEncodeUint64(tx.Nonce),
		rlpEncodeBigInt(tx.GasPrice),
		rlpEncodeUint64(tx.GasLimit),
		rlpEncodeBytes(tx.To),
		rlpEncodeBigInt(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeBigInt(v),
		rlpEncodeBigInt(sig.r),
		rlpEncodeBigInt(sig.s),
	)
	return "0x" + hex.EncodeToString(signed), nil
}

type recoverableSig struct {
	r, s       *big.Int
	recoveryID int
}

// signRecoverable produces a low-s ECDSA signature plus the recovery id
// EIP-155 needs to reconstruct the sender's address from v.
func signRecoverable(priv *btcec.PrivateKey, hash []byte) (*recoverableSig, error) {
	sig := ecdsa.SignCompact(priv, hash, false)
	// btcec's SignCompact returns [recid+27, r(32), s(32)].
	if len(sig) != 65 {
		return nil, errors.New("unexpected signature length")
	}
	recID := int(sig[0]) - 27
	r := new(big.Int).SetBytes(sig[1:33])
	s := new(big.Int).SetBytes(sig[33:65])
	return &recoverableSig{r: r, s: s, recoveryID: recID}, nil
}

// signHashOnly returns the raw 65-byte [R || S || V] signature over an
// already-computed hash, used by TVM's sign-then-append-hex wire format.
func signHashOnly(hash []byte, signerKey []byte) ([]byte, error) {
	priv, _ := btcec.PrivKeyFromBytes(signerKey)
	sig, err := signRecoverable(priv, hash)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 65)
	rBytes := sig.r.Bytes()
	sBytes := sig.s.Bytes()
	copy(out[32-len(rBytes):32], rBytes)
	copy(out[64-len(sBytes):64], sBytes)
	out[64] = byte(sig.recoveryID)
	return out, nil
}

func decodePrivateKeyHex(hexKey string) ([]byte, error) {
	h := hexKey
	if len(h) >= 2 && h[:2] == "0x" {
		h = h[2:]
	}
	return hex.DecodeString(h)
}
