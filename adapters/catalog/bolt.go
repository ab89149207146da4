// Package catalog provides core.Catalog implementations.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
)

var bucketImages = []byte("images")

// BoltConfig configures the BoltDB-backed catalog.
type BoltConfig struct {
	Path    string
	NoSync  bool
	Timeout time.Duration
}

// Bolt persists catalog records in BoltDB, one JSON document per identifier.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the catalog database.
func OpenBolt(cfg BoltConfig) (*Bolt, error) {
	if cfg.Path == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "catalog.open", fmt.Errorf("path is required"))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 1 * time.Second
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.Timeout, NoSync: cfg.NoSync})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCatalog, "catalog.open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketImages)
		return err
	})
	if err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CategoryCatalog, "catalog.init", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Put(ctx context.Context, rec core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryCatalog, "catalog.put", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketImages).Put([]byte(rec.ID), data)
	})
	return apperrors.Wrap(apperrors.CategoryCatalog, "catalog.put", err)
}

func (b *Bolt) Get(ctx context.Context, id string) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return core.Record{}, err
	}
	var rec core.Record
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketImages).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return core.Record{}, apperrors.Wrap(apperrors.CategoryCatalog, "catalog.get", err)
	}
	if !found {
		return core.Record{}, apperrors.New(apperrors.CategoryNotFound, "catalog.get", fmt.Errorf("no record for %s", id))
	}
	return rec, nil
}

func (b *Bolt) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketImages).Delete([]byte(id))
	})
	return apperrors.Wrap(apperrors.CategoryCatalog, "catalog.delete", err)
}

// List returns every record in key order.
func (b *Bolt) List(ctx context.Context) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []core.Record
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketImages).ForEach(func(_, v []byte) error {
			var rec core.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCatalog, "catalog.list", err)
	}
	return out, nil
}

func (b *Bolt) Close() error { return b.db.Close() }

var _ core.Catalog = (*Bolt)(nil)
