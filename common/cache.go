// Copyright 2018 The go-klaytn Authors
// This file is part of the go-klaytn library.
//
// The go-klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package common holds small helpers shared across the handler and
// dispatcher: a generic LRU/ARC cache wrapper, base-unit/quote money
// conversion, and the Role enum.
package common

import (
	"math"

	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

type CacheType int

const (
	LRUCacheType CacheType = iota
	ARCCacheType
)

// CacheScale lets an operator shrink every configured cache size uniformly,
// e.g. on a low-memory handler instance.
var CacheScale int = 100

type Cache interface {
	Add(key interface{}, value interface{}) (evicted bool)
	Get(key interface{}) (value interface{}, ok bool)
	Contains(key interface{}) bool
	Purge()
}

type lruCache struct {
	lru *lru.Cache
}

func (c *lruCache) Add(key, value interface{}) (evicted bool) { return c.lru.Add(key, value) }
func (c *lruCache) Get(key interface{}) (interface{}, bool)   { return c.lru.Get(key) }
func (c *lruCache) Contains(key interface{}) bool             { return c.lru.Contains(key) }
func (c *lruCache) Purge()                                    { c.lru.Purge() }

type arcCache struct {
	arc *lru.ARCCache
}

func (c *arcCache) Add(key, value interface{}) (evicted bool) {
	c.arc.Add(key, value)
	return false
}
func (c *arcCache) Get(key interface{}) (interface{}, bool) { return c.arc.Get(key) }
func (c *arcCache) Contains(key interface{}) bool            { return c.arc.Contains(key) }
func (c *arcCache) Purge()                                   { c.arc.Purge() }

// CacheConfiger builds a Cache, so callers can pass cache sizing around as
// a value (from config) instead of constructing the cache eagerly.
type CacheConfiger interface {
	NewCache() (Cache, error)
}

type LRUConfig struct {
	CacheSize int
}

func (c LRUConfig) NewCache() (Cache, error) {
	size := scaledSize(c.CacheSize)
	if size < 1 {
		return nil, errors.Errorf("cache size must be positive after scaling, got %d", size)
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruCache{l}, nil
}

type ARCConfig struct {
	CacheSize int
}

func (c ARCConfig) NewCache() (Cache, error) {
	size := scaledSize(c.CacheSize)
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &arcCache{arc}, nil
}

func scaledSize(base int) int {
	return int(math.Max(1, float64(base*CacheScale)/100))
}

func NewCache(config CacheConfiger) (Cache, error) {
	if config == nil {
		return nil, errors.New("cache config is nil")
	}
	return config.NewCache()
}
