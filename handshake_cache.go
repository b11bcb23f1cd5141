package statesync

import (
	"github.com/cespare/xxhash"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// HandshakeCache keeps decoded handshakes by content hash, so rejoining
// a room of a known type skips rebuilding its classes.
type HandshakeCache struct {
	cache *lru.Cache[uint64, *Handshake]
	log   utils.Logger
}

func NewHandshakeCache(size int, log utils.Logger) (*HandshakeCache, error) {
	cache, err := lru.New[uint64, *Handshake](size)
	if err != nil {
		return nil, err
	}
	return &HandshakeCache{cache: cache, log: log}, nil
}

func (hc *HandshakeCache) Load(buf []byte, offset int) (*Handshake, error) {
	if offset < 0 || offset > len(buf) {
		return nil, errors.Wrapf(statesync_errors.ErrBadHandshake, "offset %d of %d", offset, len(buf))
	}
	hash := xxhash.Sum64(buf[offset:])
	if h, ok := hc.cache.Get(hash); ok {
		HandshakeCacheHits.WithLabelValues("hit").Inc()
		return h, nil
	}
	HandshakeCacheHits.WithLabelValues("miss").Inc()
	h, err := DecodeHandshake(buf, offset, hc.log)
	if err != nil {
		return nil, err
	}
	hc.cache.Add(hash, h)
	hc.log.Debug("handshake: cached", "types", h.Context.Len(), "root", h.Root.Name)
	return h, nil
}

func (hc *HandshakeCache) Len() int {
	return hc.cache.Len()
}
