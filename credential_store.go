package zerofriction

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	credentialKeyPrefix       = "zfl:cred"
	credentialRecordVersionV1 = 1
	credentialMaxRetries      = 4
)

var (
	errCredentialNotFound         = errors.New("credential not found")
	errCredentialMismatch         = errors.New("credential hash mismatch")
	errCredentialStoreUnavailable = errors.New("credential storage unavailable")
)

type credentialRecord struct {
	Kind           CredentialKind
	CredentialHash [32]byte
	ExpiresAt      int64
	CreatedAt      int64
}

// credentialStore persists at most one live credential per identity. The
// key is the identity hash, so saving a new credential atomically
// supersedes any prior one, and consuming deletes the key — both invariants
// fall out of the key schema rather than bookkeeping.
type credentialStore struct {
	redis *redis.Client
}

func newCredentialStore(redisClient *redis.Client) *credentialStore {
	return &credentialStore{redis: redisClient}
}

func (s *credentialStore) key(identityHash string) string {
	return credentialKeyPrefix + ":" + identityHash
}

// Save writes the credential, replacing whatever was live for the identity.
// The key TTL matches the credential expiry; ExpiresAt is still checked at
// read time so a lagging TTL cannot extend a credential's life.
func (s *credentialStore) Save(
	ctx context.Context,
	identityHash string,
	record *credentialRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeCredentialRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(identityHash), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errCredentialStoreUnavailable, err)
	}

	return nil
}

// Consume validates a presented hash against the live credential and
// deletes it on a match, enforcing single use. The hash comparison is
// constant time. A mismatch leaves the credential in place; an expired
// credential is deleted and reported as not found.
func (s *credentialStore) Consume(
	ctx context.Context,
	identityHash string,
	providedHash [32]byte,
) (*credentialRecord, error) {
	key := s.key(identityHash)

	for i := 0; i < credentialMaxRetries; i++ {
		var matched *credentialRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeCredentialRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errCredentialNotFound
			}

			if subtle.ConstantTimeCompare(record.CredentialHash[:], providedHash[:]) != 1 {
				return errCredentialMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errCredentialNotFound
			case errors.Is(err, errCredentialNotFound), errors.Is(err, errCredentialMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errCredentialStoreUnavailable, err)
			}
		}

		return matched, nil
	}

	// Exhausted retries mean sustained write contention on the key, which is
	// an infrastructure condition: fail closed rather than charge the caller
	// a failed attempt.
	return nil, fmt.Errorf("%w: transaction contention", errCredentialStoreUnavailable)
}

// Invalidate removes the live credential for an identity without consuming
// it.
func (s *credentialStore) Invalidate(ctx context.Context, identityHash string) error {
	if err := s.redis.Del(ctx, s.key(identityHash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errCredentialStoreUnavailable, err)
	}
	return nil
}

func encodeCredentialRecord(record *credentialRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(credentialRecordVersionV1)
	buf.WriteByte(byte(record.Kind))

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	buf.Write(record.CredentialHash[:])

	return buf.Bytes(), nil
}

func decodeCredentialRecord(data []byte) (*credentialRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != credentialRecordVersionV1 {
		return nil, errors.New("invalid credential record version")
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &credentialRecord{Kind: CredentialKind(kind)}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CredentialHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
