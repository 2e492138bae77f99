package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nkefor/cutover/pkg/types"
)

var (
	// Bucket names
	bucketDeployments = []byte("deployments")
	bucketRollbacks   = []byte("rollbacks")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the audit database in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "cutover.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDeployments, bucketRollbacks} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveDeployment writes the full deployment record, including its phase log
func (s *BoltStore) SaveDeployment(deployment *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data, err := json.Marshal(deployment)
		if err != nil {
			return err
		}
		return b.Put([]byte(deployment.ID), data)
	})
}

// GetDeployment fetches one deployment by ID
func (s *BoltStore) GetDeployment(id string) (*types.Deployment, error) {
	var deployment types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("deployment not found: %s", id)
		}
		return json.Unmarshal(data, &deployment)
	})
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}

// ListDeployments returns up to limit deployments for a service, newest
// first. limit <= 0 means no limit.
func (s *BoltStore) ListDeployments(service string, limit int) ([]*types.Deployment, error) {
	var deployments []*types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.ForEach(func(k, v []byte) error {
			var deployment types.Deployment
			if err := json.Unmarshal(v, &deployment); err != nil {
				return err
			}
			if service == "" || deployment.Service == service {
				deployments = append(deployments, &deployment)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(deployments, func(i, j int) bool {
		return deployments[i].StartedAt.After(deployments[j].StartedAt)
	})
	if limit > 0 && len(deployments) > limit {
		deployments = deployments[:limit]
	}
	return deployments, nil
}

// SaveRollback writes a rollback record
func (s *BoltStore) SaveRollback(record *types.RollbackRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRollbacks)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.ID), data)
	})
}

// ListRollbacks returns up to limit rollback records for a service, newest
// first
func (s *BoltStore) ListRollbacks(service string, limit int) ([]*types.RollbackRecord, error) {
	var records []*types.RollbackRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRollbacks)
		return b.ForEach(func(k, v []byte) error {
			var record types.RollbackRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if service == "" || record.Service == service {
				records = append(records, &record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// RollbacksSince counts rollbacks for a service after the given time
func (s *BoltStore) RollbacksSince(service string, since time.Time) (int, error) {
	records, err := s.ListRollbacks(service, 0)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, record := range records {
		if record.Timestamp.After(since) {
			count++
		}
	}
	return count, nil
}
