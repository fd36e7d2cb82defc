package bootstrap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveAccountKeyDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)
	a := deriveAccountKey(seed, 12, 0)
	b := deriveAccountKey(seed, 12, 0)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestDeriveAccountKeyDiffersByIndex(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)
	a := deriveAccountKey(seed, 12, 0)
	b := deriveAccountKey(seed, 12, 1)
	assert.NotEqual(t, a, b)
}

func TestDeriveAccountKeyDiffersByRole(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)
	a := deriveAccountKey(seed, 12, 0)
	b := deriveAccountKey(seed, 11, 0)
	assert.NotEqual(t, a, b)
}

func TestDeriveAccountKeyDiffersBySeed(t *testing.T) {
	a := deriveAccountKey(bytes.Repeat([]byte{0x42}, 64), 12, 0)
	b := deriveAccountKey(bytes.Repeat([]byte{0x43}, 64), 12, 0)
	assert.NotEqual(t, a, b)
}
