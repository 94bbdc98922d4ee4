// Package history persists each member's voted-position map in a bbolt file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/models"
)

const bucketName = "vote_history"

// ErrMalformed is returned when a stored record does not decode
var ErrMalformed = errors.New("malformed vote history")

// Store is a bbolt-backed history store keyed by member id
type Store struct {
	db  *bolt.DB
	log logger.Logger
}

// Open opens or creates the history file at path
func Open(path string, log logger.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, fmt.Errorf("history file %s is in use by another process", path)
		}
		return nil, fmt.Errorf("opening history file: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history bucket: %w", err)
	}

	log.Debug("Vote history opened", "path", path)
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying file
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the member's history, or nil when none is stored
func (s *Store) Load(memberKey string) (*models.VoteHistory, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketName)).Get([]byte(memberKey)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var h models.VoteHistory
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrMalformed, memberKey, err)
	}
	if h.VotedPositions == nil {
		h.VotedPositions = map[string]bool{}
	}
	return &h, nil
}

// Save overwrites the member's history
func (s *Store) Save(memberKey string, h models.VoteHistory) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(memberKey), data)
	})
}

// Delete removes one member's history
func (s *Store) Delete(memberKey string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(memberKey))
	})
}

// Clear removes every member's history
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err == nil {
		s.log.Warn("Vote history cleared")
	}
	return err
}

// Keys lists the member ids with stored history
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
