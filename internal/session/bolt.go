package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"tasktracker/internal/logging"
	"tasktracker/internal/model"
)

var sessionBucket = []byte("session")

type BoltStore struct {
	db     *bbolt.DB
	key    []byte
	logger *zap.Logger
}

func OpenBolt(path, key string, logger *zap.Logger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, key: []byte(key), logger: logging.OrNop(logger)}, nil
}

func (s *BoltStore) Save(_ context.Context, sess model.Session) error {
	data, err := encode(sess)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionBucket).Put(s.key, data)
	})
}

func (s *BoltStore) Load(_ context.Context) (model.Session, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(sessionBucket).Get(s.key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return model.Session{}, false, err
	}
	sess, ok := decode(data, s.logger)
	return sess, ok, nil
}

func (s *BoltStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete(s.key)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
