package geo

import (
	"sync"

	"ridedispatch/internal/model"
)

// GeocodeCache keeps resolved coordinates per normalized address for the
// process lifetime. Addresses rarely move; no eviction.
type GeocodeCache struct {
	mu sync.Mutex
	m  map[string]model.GeoPoint
}

func NewGeocodeCache() *GeocodeCache {
	return &GeocodeCache{m: map[string]model.GeoPoint{}}
}

func (c *GeocodeCache) Get(address string) (model.GeoPoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pt, ok := c.m[address]
	return pt, ok
}

func (c *GeocodeCache) Put(address string, pt model.GeoPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[address] = pt
}
