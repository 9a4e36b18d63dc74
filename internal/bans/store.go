// Package bans persists the ban list and serves the local admin API.
package bans

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketBans = []byte("bans")

var ErrNotBanned = errors.New("profile is not banned")

// Record is one ban entry, keyed by profile id.
type Record struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Reason   string `json:"reason"`
	BannedAt int64  `json:"bannedAt"`
}

// Store is the bbolt-backed ban database. Safe for concurrent use; reads
// happen on the login path, writes through the admin API.
type Store struct {
	db *bolt.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBans)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get returns the ban record for id, or ErrNotBanned. A nil Store bans
// nobody, so deployments without a ban database skip the check for free.
func (s *Store) Get(id uuid.UUID) (rec Record, err error) {
	if s == nil {
		return Record{}, ErrNotBanned
	}
	err = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBans).Get(id[:])
		if raw == nil {
			return ErrNotBanned
		}
		return json.Unmarshal(raw, &rec)
	})
	return
}

func (s *Store) Put(id uuid.UUID, rec Record) error {
	if s == nil {
		return errors.New("no ban database configured")
	}
	rec.ID = id.String()
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBans).Put(id[:], raw)
	})
}

func (s *Store) Delete(id uuid.UUID) error {
	if s == nil {
		return errors.New("no ban database configured")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBans).Delete(id[:])
	})
}

func (s *Store) List() (recs []Record, err error) {
	recs = []Record{}
	if s == nil {
		return
	}
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBans).ForEach(func(_, raw []byte) error {
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
