package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateKeyErrorMatchesMySQL(t *testing.T) {
	err := errors.New("Error 1062: Duplicate entry 'abc' for key 'customers.idx_external_id'")
	assert.True(t, isDuplicateKeyError(err))
}

func TestIsDuplicateKeyErrorMatchesSQLite(t *testing.T) {
	err := errors.New("UNIQUE constraint failed: customers.external_id")
	assert.True(t, isDuplicateKeyError(err))
}

func TestIsDuplicateKeyErrorFalseForOtherErrors(t *testing.T) {
	assert.False(t, isDuplicateKeyError(errors.New("connection refused")))
	assert.False(t, isDuplicateKeyError(nil))
}

func TestContains(t *testing.T) {
	assert.True(t, contains("hello world", "world"))
	assert.True(t, contains("hello world", "hello world"))
	assert.False(t, contains("hello", "world"))
	assert.False(t, contains("hi", "hello"))
}
