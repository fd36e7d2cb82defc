package chainclient

import (
	"encoding/hex"
	"math/big"
)

// Minimal ABI encoding for the five ERC20/TRC20 calls the token sweep and
// withdrawal conductors need (spec.md §4.2's "contract call helpers").
// Full ABI decoding/encoding lives in go-ethereum's abi package, which is
// not a wired dependency here (klaytn's own ABI tooling was filtered out
// of the retrieval pack); the five selectors below are fixed values, and
// every argument they take is a 32-byte word, so hand-encoding is a few
// lines rather than a dependency (see DESIGN.md).

var (
	selectorBalanceOf     = methodID("balanceOf(address)")
	selectorAllowance     = methodID("allowance(address,address)")
	selectorApprove       = methodID("approve(address,uint256)")
	selectorTransfer      = methodID("transfer(address,uint256)")
	selectorTransferFrom  = methodID("transferFrom(address,address,uint256)")
)

func methodID(signature string) []byte {
	return keccak256([]byte(signature))[:4]
}

func encodeAddress(addr string) []byte {
	word := make([]byte, 32)
	a := addr
	if len(a) >= 2 && a[:2] == "0x" {
		a = a[2:]
	}
	b, _ := hex.DecodeString(a)
	copy(word[32-len(b):], b)
	return word
}

func encodeUint256(v *big.Int) []byte {
	word := make([]byte, 32)
	if v == nil {
		return word
	}
	b := v.Bytes()
	copy(word[32-len(b):], b)
	return word
}

func encodeCall(selector []byte, words ...[]byte) []byte {
	out := append([]byte{}, selector...)
	for _, w := range words {
		out = append(out, w...)
	}
	return out
}

func callBalanceOf(owner string) []byte {
	return encodeCall(selectorBalanceOf, encodeAddress(owner))
}

func callAllowance(owner, spender string) []byte {
	return encodeCall(selectorAllowance, encodeAddress(owner), encodeAddress(spender))
}

func callApprove(spender string, amount *big.Int) []byte {
	return encodeCall(selectorApprove, encodeAddress(spender), encodeUint256(amount))
}

func callTransfer(to string, amount *big.Int) []byte {
	return encodeCall(selectorTransfer, encodeAddress(to), encodeUint256(amount))
}

func callTransferFrom(from, to string, amount *big.Int) []byte {
	return encodeCall(selectorTransferFrom, encodeAddress(from), encodeAddress(to), encodeUint256(amount))
}

func decodeUint256(data []byte) *big.Int {
	if len(data) < 32 {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(data[len(data)-32:])
}
