package directory

import (
	"fmt"
	"sync"
	"time"

	"msgrelay/internal/domain"
)

// Defaults used when a cap is not configured.
const (
	DefaultMaxKeyLen = 4 * 1024
	DefaultMaxBatch  = 100
)

// Directory is a concurrent address-keyed table of public key records.
// Keys are small and reads dominate, so a single RWMutex over a map is
// enough; no operation holds the lock across I/O.
type Directory struct {
	mu        sync.RWMutex
	keys      map[domain.Address]domain.KeyRecord
	maxKeyLen int
	maxBatch  int

	now func() time.Time
}

// New returns an empty directory. maxKeyLen bounds the stored public key
// string, maxBatch bounds GetBatch; zero values select the defaults.
func New(maxKeyLen, maxBatch int) *Directory {
	if maxKeyLen <= 0 {
		maxKeyLen = DefaultMaxKeyLen
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Directory{
		keys:      make(map[domain.Address]domain.KeyRecord),
		maxKeyLen: maxKeyLen,
		maxBatch:  maxBatch,
		now:       time.Now,
	}
}

// Store upserts the record for addr. Overwrites preserve CreatedAt and
// advance UpdatedAt.
func (d *Directory) Store(addr domain.Address, publicKey string) (domain.KeyRecord, error) {
	if publicKey == "" || len(publicKey) > d.maxKeyLen {
		return domain.KeyRecord{}, fmt.Errorf("%w: public key must be 1..%d bytes", domain.ErrPayloadTooLarge, d.maxKeyLen)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now().UTC()
	rec := domain.KeyRecord{
		Address:   addr,
		PublicKey: publicKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, ok := d.keys[addr]; ok {
		rec.CreatedAt = prev.CreatedAt
	}
	d.keys[addr] = rec
	return rec, nil
}

// Get returns the record for addr, if any.
func (d *Directory) Get(addr domain.Address) (domain.KeyRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.keys[addr]
	return rec, ok
}

// GetBatch returns the records for every address in addrs that exists,
// silently omitting the rest. Batches over the configured maximum fail.
func (d *Directory) GetBatch(addrs []domain.Address) (map[domain.Address]domain.KeyRecord, error) {
	if len(addrs) > d.maxBatch {
		return nil, fmt.Errorf("%w: %d addresses, maximum %d", domain.ErrBatchTooLarge, len(addrs), d.maxBatch)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[domain.Address]domain.KeyRecord, len(addrs))
	for _, addr := range addrs {
		if rec, ok := d.keys[addr]; ok {
			out[addr] = rec
		}
	}
	return out, nil
}

// Delete removes the record for addr. Idempotent.
func (d *Directory) Delete(addr domain.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, addr)
}

// Has reports whether a record exists for addr.
func (d *Directory) Has(addr domain.Address) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.keys[addr]
	return ok
}

// Len returns the number of stored records.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.keys)
}

// MaxBatch returns the configured batch cap.
func (d *Directory) MaxBatch() int { return d.maxBatch }

var _ domain.KeyDirectory = (*Directory)(nil)
