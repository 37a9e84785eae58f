package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/dayuer/chatgw/internal/redis"
)

// ErrSecretNotFound is returned by a Store when the reference does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// Store fetches the raw JSON blob stored under a secret reference.
type Store interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// secretsManagerAPI is the subset of the Secrets Manager client used here.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStore reads secrets from AWS Secrets Manager. The reference is a secret
// ARN or name.
type AWSStore struct {
	client secretsManagerAPI
}

// NewAWSStore wraps a Secrets Manager client.
func NewAWSStore(client secretsManagerAPI) *AWSStore {
	return &AWSStore{client: client}
}

// Fetch implements Store.
func (s *AWSStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret value %s: %w", ref, err)
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	if len(out.SecretBinary) > 0 {
		return out.SecretBinary, nil
	}
	return nil, fmt.Errorf("secret %s: %w", ref, ErrSecretNotFound)
}

// RedisStore reads secret blobs stored as plain string values.
type RedisStore struct {
	client *goredis.Client
	keys   redis.Keys
}

// NewRedisStore creates a Redis-backed secret store.
func NewRedisStore(client *goredis.Client, keys redis.Keys) *RedisStore {
	return &RedisStore{client: client, keys: keys}
}

// Fetch implements Store.
func (s *RedisStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.keys.Secret(ref)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("secret %s: %w", ref, ErrSecretNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get secret %s: %w", ref, err)
	}
	return val, nil
}

// FileStore reads secrets from a YAML file mapping each reference to either a
// JSON string or a nested map, for local development:
//
//	zalo-dev:
//	  APP_SECRET: s3cr3t
//	  ACCESS_TOKEN: tok
//	wechat-dev: '{"APP_SECRET":"x"}'
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed secret store. The file is read on every
// Fetch; the Cache in front of it makes that once per channel.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Fetch implements Store.
func (s *FileStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	var entries map[string]any
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	entry, ok := entries[ref]
	if !ok {
		return nil, fmt.Errorf("secret %s: %w", ref, ErrSecretNotFound)
	}
	if blob, ok := entry.(string); ok {
		return []byte(blob), nil
	}
	return json.Marshal(entry)
}
