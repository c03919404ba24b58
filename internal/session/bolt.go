package session

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/oauth2"
)

const (
	rootBucket = "session"
	tokenKey   = "google"
)

// BoltStore keeps the token under a single key in a bbolt database. The database
// is opened for each call so the file is not held locked between runs.
type BoltStore struct {
	Path string
}

func (s BoltStore) open() (*bolt.DB, error) {
	db, err := bolt.Open(s.Path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("could not open db %s: %w", s.Path, err)
	}
	return db, nil
}

func (s BoltStore) Load() (*oauth2.Token, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var raw []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(rootBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(tokenKey)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, err
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(raw, tok); err != nil {
		return nil, fmt.Errorf("unable to decode stored token: %w", err)
	}
	return tok, nil
}

func (s BoltStore) Save(token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("unable to encode token: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		if err != nil {
			return fmt.Errorf("unable to create root bucket %s: %w", rootBucket, err)
		}
		return b.Put([]byte(tokenKey), raw)
	})
}
