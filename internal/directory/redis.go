package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/redis"
)

// Hash fields of a participant record.
const (
	fieldContactID        = "contactId"
	fieldVendorID         = "vendorId"
	fieldChannel          = "channel"
	fieldParticipantToken = "participantToken"
	fieldConnectionToken  = "connectionToken"
	fieldExpiresAt        = "expiresAt"
)

// Every script declares each key it touches in KEYS. Keys of one record and
// its vendor index hash to different slots, so the store expects a
// non-cluster Redis.

// createScript writes the record and its vendor index unless the index points
// at a live record, in which case it returns that record's id. The caller
// passes the index value it read; if the index moved since, the script
// returns createRetry and writes nothing.
//
// KEYS[1] vendor index, KEYS[2] new participant hash, KEYS[3] participant
// hash the index pointed at (KEYS[2] when the index was empty).
// ARGV: index value read, contactId, vendorId, channel, participantToken,
// expiresAt (unix s).
var createScript = goredis.NewScript(`
local current = redis.call('GET', KEYS[1]) or ''
if current ~= ARGV[1] then
  return '*'
end
if current ~= '' and redis.call('EXISTS', KEYS[3]) == 1 then
  return current
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return ARGV[2]
end
redis.call('HSET', KEYS[2],
  'contactId', ARGV[2], 'vendorId', ARGV[3], 'channel', ARGV[4],
  'participantToken', ARGV[5], 'expiresAt', ARGV[6])
redis.call('EXPIREAT', KEYS[2], ARGV[6])
redis.call('SET', KEYS[1], ARGV[2])
redis.call('EXPIREAT', KEYS[1], ARGV[6])
return ''
`)

const (
	createRetry    = "*"
	createAttempts = 5
)

// attachScript sets the connection token on an existing record only.
var attachScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'connectionToken', ARGV[1])
return 1
`)

// extendScript moves the expiry of the record and of its index entry.
// KEYS[1] participant hash, KEYS[2] vendor index. ARGV: expiresAt (unix s),
// contactId.
var extendScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'expiresAt', ARGV[1])
redis.call('EXPIREAT', KEYS[1], ARGV[1])
if redis.call('GET', KEYS[2]) == ARGV[2] then
  redis.call('EXPIREAT', KEYS[2], ARGV[1])
end
return 1
`)

// deleteScript removes the record and its index entry if the entry still
// points at this record. KEYS[1] participant hash, KEYS[2] vendor index.
// ARGV: contactId.
var deleteScript = goredis.NewScript(`
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
return redis.call('DEL', KEYS[1])
`)

// RedisStore keeps participants in Redis hashes with a vendor index.
type RedisStore struct {
	client *goredis.Client
	keys   redis.Keys
}

// NewRedisStore creates a RedisStore on a shared client.
func NewRedisStore(client *goredis.Client, keys redis.Keys) *RedisStore {
	return &RedisStore{client: client, keys: keys}
}

func (s *RedisStore) Get(ctx context.Context, contactID string) (Participant, error) {
	vals, err := s.client.HGetAll(ctx, s.keys.Participant(contactID)).Result()
	if err != nil {
		return Participant{}, fmt.Errorf("redis get participant: %w", err)
	}
	if len(vals) == 0 {
		return Participant{}, ErrNotFound
	}
	return decodeParticipant(vals)
}

func (s *RedisStore) LookupByVendor(ctx context.Context, ch channels.Channel, vendorID string) (Participant, error) {
	id, err := s.client.Get(ctx, s.keys.Vendor(string(ch), vendorID)).Result()
	if errors.Is(err, goredis.Nil) {
		return Participant{}, ErrNotFound
	}
	if err != nil {
		return Participant{}, fmt.Errorf("redis lookup vendor: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, p Participant) error {
	index := s.keys.Vendor(string(p.Channel), p.VendorID)
	self := s.keys.Participant(p.ContactID)

	for range createAttempts {
		current, err := s.client.Get(ctx, index).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("redis read vendor index: %w", err)
		}
		holder := self
		if current != "" {
			holder = s.keys.Participant(current)
		}

		winner, err := createScript.Run(ctx, s.client, []string{index, self, holder},
			current, p.ContactID, p.VendorID, string(p.Channel), p.ParticipantToken, p.ExpiresAt.Unix(),
		).Text()
		if err != nil {
			return fmt.Errorf("redis create participant: %w", err)
		}
		switch winner {
		case "":
			return nil
		case createRetry:
			continue
		default:
			return &ConflictError{WinnerID: winner}
		}
	}
	return fmt.Errorf("redis create participant: vendor index for %s kept changing", p.ContactID)
}

// indexOf returns the vendor index key of a stored record.
func (s *RedisStore) indexOf(ctx context.Context, contactID string) (string, bool, error) {
	f, err := s.client.HMGet(ctx, s.keys.Participant(contactID), fieldChannel, fieldVendorID).Result()
	if err != nil {
		return "", false, err
	}
	ch, _ := f[0].(string)
	vendor, _ := f[1].(string)
	if ch == "" || vendor == "" {
		return "", false, nil
	}
	return s.keys.Vendor(ch, vendor), true, nil
}

func (s *RedisStore) SetConnectionToken(ctx context.Context, contactID, token string) error {
	n, err := attachScript.Run(ctx, s.client, []string{s.keys.Participant(contactID)}, token).Int()
	if err != nil {
		return fmt.Errorf("redis attach connection token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Extend(ctx context.Context, contactID string, expiresAt time.Time) error {
	index, ok, err := s.indexOf(ctx, contactID)
	if err != nil {
		return fmt.Errorf("redis extend participant: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	n, err := extendScript.Run(ctx, s.client, []string{s.keys.Participant(contactID), index},
		expiresAt.Unix(), contactID,
	).Int()
	if err != nil {
		return fmt.Errorf("redis extend participant: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, contactID string) error {
	index, ok, err := s.indexOf(ctx, contactID)
	if err != nil {
		return fmt.Errorf("redis delete participant: %w", err)
	}
	if !ok {
		if err := s.client.Del(ctx, s.keys.Participant(contactID)).Err(); err != nil {
			return fmt.Errorf("redis delete participant: %w", err)
		}
		return nil
	}
	err = deleteScript.Run(ctx, s.client, []string{s.keys.Participant(contactID), index}, contactID).Err()
	if err != nil {
		return fmt.Errorf("redis delete participant: %w", err)
	}
	return nil
}

func decodeParticipant(vals map[string]string) (Participant, error) {
	p := Participant{
		ContactID:        vals[fieldContactID],
		VendorID:         vals[fieldVendorID],
		Channel:          channels.Channel(vals[fieldChannel]),
		ParticipantToken: vals[fieldParticipantToken],
		ConnectionToken:  vals[fieldConnectionToken],
	}
	if raw := vals[fieldExpiresAt]; raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Participant{}, fmt.Errorf("participant %s: bad expiresAt %q", p.ContactID, raw)
		}
		p.ExpiresAt = time.Unix(sec, 0)
	}
	return p, nil
}
