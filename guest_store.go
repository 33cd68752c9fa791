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
	guestKeyPrefix       = "zfl:guest"
	guestRecordVersionV1 = 1
	guestMaxRetries      = 4
)

var (
	errGuestNotFound         = errors.New("guest session not found")
	errGuestIdentityMismatch = errors.New("guest session identity mismatch")
	errGuestStoreUnavailable = errors.New("guest session storage unavailable")
)

type guestRecord struct {
	Identity  string
	ExpiresAt int64
	CreatedAt int64
}

// guestStore persists single-use guest sessions keyed by token. Redemption
// consumes the record and checks the bound identity inside the same
// transaction, so a token can never be redeemed twice or for a different
// identity.
type guestStore struct {
	redis *redis.Client
}

func newGuestStore(redisClient *redis.Client) *guestStore {
	return &guestStore{redis: redisClient}
}

func (s *guestStore) key(token string) string {
	return guestKeyPrefix + ":" + token
}

func (s *guestStore) Save(ctx context.Context, token string, record *guestRecord, ttl time.Duration) error {
	encoded, err := encodeGuestRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(token), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errGuestStoreUnavailable, err)
	}

	return nil
}

// Consume redeems a guest session. The supplied identity must exactly match
// the one the token was issued for; on match the record is deleted. An
// identity mismatch also consumes the token — a token presented with the
// wrong identity is treated as compromised.
func (s *guestStore) Consume(ctx context.Context, token, identity string) (*guestRecord, error) {
	key := s.key(token)

	for i := 0; i < guestMaxRetries; i++ {
		var matched *guestRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeGuestRecord(data)
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
				return errGuestNotFound
			}

			match := subtle.ConstantTimeCompare([]byte(record.Identity), []byte(identity)) == 1

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			if !match {
				return errGuestIdentityMismatch
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
				return nil, errGuestNotFound
			case errors.Is(err, errGuestNotFound), errors.Is(err, errGuestIdentityMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errGuestStoreUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, fmt.Errorf("%w: transaction contention", errGuestStoreUnavailable)
}

// Invalidate removes a guest session without redeeming it.
func (s *guestStore) Invalidate(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errGuestStoreUnavailable, err)
	}
	return nil
}

func encodeGuestRecord(record *guestRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(guestRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	if len(record.Identity) > 65535 {
		return nil, errors.New("guest record identity too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Identity))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Identity)

	return buf.Bytes(), nil
}

func decodeGuestRecord(data []byte) (*guestRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != guestRecordVersionV1 {
		return nil, errors.New("invalid guest record version")
	}

	record := &guestRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	var identityLen uint16
	if err := binary.Read(reader, binary.BigEndian, &identityLen); err != nil {
		return nil, err
	}

	identity := make([]byte, identityLen)
	if _, err := io.ReadFull(reader, identity); err != nil {
		return nil, err
	}
	record.Identity = string(identity)

	return record, nil
}
