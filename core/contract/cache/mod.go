// Package cache implements a persistent cache of fetched ledger transactions.
//
// Contract sources and initial states never change once committed, so a
// reader replaying histories can keep every fetched transaction around and
// avoid refetching on later loads. The default implementation is using bbolt
// as the engine (https://github.com/etcd-io/bbolt).
package cache

import (
	"encoding/json"

	"github.com/loomledger/loom/core/ledger"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

// Cache is a store of committed transactions keyed by their identifier.
type Cache interface {
	// Get returns the cached transaction, if any.
	Get(id string) (ledger.Transaction, bool)

	// Set stores the transaction.
	Set(tx ledger.Transaction) error

	// Close closes the cache and frees the resources.
	Close() error
}

var bucket = []byte("transactions")

// BoltCache is an adapter of the cache using bboltdb.
//
// - implements cache.Cache
type boltCache struct {
	bolt *bbolt.DB
}

// New opens the database at the given path.
func New(path string) (Cache, error) {
	db, err := bbolt.Open(path, 0666, &bbolt.Options{})
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return boltCache{bolt: db}, nil
}

// Get implements cache.Cache. It reads the transaction from the bucket.
func (c boltCache) Get(id string) (ledger.Transaction, bool) {
	var tx ledger.Transaction
	found := false

	c.bolt.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(bucket)
		if b == nil {
			return nil
		}

		value := b.Get([]byte(id))
		if value == nil {
			return nil
		}

		err := json.Unmarshal(value, &tx)
		if err != nil {
			return nil
		}

		found = true
		return nil
	})

	return tx, found
}

// Set implements cache.Cache. It stores the transaction in the bucket,
// creating it if necessary.
func (c boltCache) Set(tx ledger.Transaction) error {
	value, err := json.Marshal(tx)
	if err != nil {
		return xerrors.Errorf("failed to serialize transaction: %v", err)
	}

	return c.bolt.Update(func(btx *bbolt.Tx) error {
		b, err := btx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return xerrors.Errorf("failed to create bucket: %v", err)
		}

		return b.Put([]byte(tx.ID), value)
	})
}

// Close implements cache.Cache. It closes the database. Any call will result
// in an error after this function is called.
func (c boltCache) Close() error {
	return c.bolt.Close()
}
