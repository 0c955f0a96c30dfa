package sessions

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/argon2"
)

const (
	sessionBucket  = "active_sessions"
	identityBucket = "active_identities"
	metaBucket     = "meta"
	saltKey        = "salt"

	saltLength  = 16
	nonceLength = 12
)

var _ Store = (*BoltStore)(nil)

// BoltStore persists active sessions in a local BoltDB file so they survive
// process restarts. With a passphrase set, records are sealed with AES-GCM
// under an argon2id-derived key before they touch disk.
type BoltStore struct {
	db    *bbolt.DB
	codec Codec
	aead  cipher.AEAD
}

// BoltOption configures a BoltStore.
type BoltOption func(*boltOptions)

type boltOptions struct {
	passphrase string
}

// WithPassphrase encrypts stored records at rest under a key derived from
// the passphrase.
func WithPassphrase(passphrase string) BoltOption {
	return func(o *boltOptions) {
		o.passphrase = passphrase
	}
}

// OpenBoltStore opens (creating if needed) a BoltDB-backed store at path.
func OpenBoltStore(path string, codec Codec, opts ...BoltOption) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("[OpenBoltStore] storage path is required")
	}

	var options boltOptions
	for _, opt := range opts {
		opt(&options)
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "[OpenBoltStore] failed to open storage db")
	}

	store := &BoltStore{db: db, codec: codec}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if options.passphrase != "" {
		if err := store.initCipher(options.passphrase); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) ensureBuckets() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range []string{sessionBucket, identityBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "[BoltStore] failed to create buckets")
}

// initCipher derives the sealing key from the passphrase. The random salt is
// created on first use and kept in the meta bucket so the same passphrase
// reopens existing data.
func (s *BoltStore) initCipher(passphrase string) error {
	var salt []byte
	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if existing := meta.Get([]byte(saltKey)); existing != nil {
			salt = append([]byte(nil), existing...)
			return nil
		}
		salt = make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		return meta.Put([]byte(saltKey), salt)
	})
	if err != nil {
		return errors.Wrap(err, "[BoltStore] failed to initialize salt")
	}

	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return errors.Wrap(err, "[BoltStore] failed to create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return errors.Wrap(err, "[BoltStore] failed to create AEAD")
	}
	s.aead = aead
	return nil
}

func (s *BoltStore) seal(plaintext []byte) ([]byte, error) {
	if s.aead == nil {
		return plaintext, nil
	}
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "[BoltStore] failed to generate nonce")
	}
	return append(nonce, s.aead.Seal(nil, nonce, plaintext, nil)...), nil
}

func (s *BoltStore) open(stored []byte) ([]byte, error) {
	if s.aead == nil {
		return stored, nil
	}
	if len(stored) < nonceLength {
		return nil, errors.New("[BoltStore] stored record too short")
	}
	plaintext, err := s.aead.Open(nil, stored[:nonceLength], stored[nonceLength:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "[BoltStore] failed to decrypt stored record")
	}
	return plaintext, nil
}

// GetActive returns the active session for key, or nil when none is stored.
func (s *BoltStore) GetActive(ctx context.Context, key string) (*Session, error) {
	data, err := s.get(ctx, sessionBucket, key)
	if err != nil || data == nil {
		return nil, err
	}
	return s.codec.Decode(data)
}

// SetActive replaces the active session for key and returns the form re-read
// from disk. A nil session clears the slot.
func (s *BoltStore) SetActive(ctx context.Context, key string, session *Session) (*Session, error) {
	if session == nil {
		if err := s.put(ctx, sessionBucket, key, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	encoded, err := s.codec.Encode(session)
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, sessionBucket, key, encoded); err != nil {
		return nil, err
	}
	return s.GetActive(ctx, key)
}

// GetActiveIdentity returns the active social identity pointer for key.
func (s *BoltStore) GetActiveIdentity(ctx context.Context, key string) (*ActiveIdentity, error) {
	data, err := s.get(ctx, identityBucket, key)
	if err != nil || data == nil {
		return nil, err
	}
	var identity ActiveIdentity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, errors.Wrap(err, "[BoltStore.GetActiveIdentity] failed to unmarshal identity")
	}
	return &identity, nil
}

// SetActiveIdentity replaces the active social identity pointer for key.
func (s *BoltStore) SetActiveIdentity(ctx context.Context, key string, identity *ActiveIdentity) error {
	if identity == nil {
		return s.put(ctx, identityBucket, key, nil)
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return errors.Wrap(err, "[BoltStore.SetActiveIdentity] failed to marshal identity")
	}
	return s.put(ctx, identityBucket, key, data)
}

func (s *BoltStore) get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stored []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if value := tx.Bucket([]byte(bucket)).Get([]byte(key)); value != nil {
			stored = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "[BoltStore] read failed")
	}
	if stored == nil {
		return nil, nil
	}
	return s.open(stored)
}

func (s *BoltStore) put(ctx context.Context, bucket, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if value == nil {
			return b.Delete([]byte(key))
		}
		sealed, err := s.seal(value)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), sealed)
	})
	return errors.Wrap(err, "[BoltStore] write failed")
}
