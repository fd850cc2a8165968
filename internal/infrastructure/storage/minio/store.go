package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/intelligence/model"
	"github.com/turtacn/lupa/pkg/errors"
)

// ModelStore reads and writes model documents as objects. Keys are relative
// to the configured prefix and carry a .json, .yaml or .yml extension.
type ModelStore interface {
	Get(ctx context.Context, key string) (*model.Model, error)
	Put(ctx context.Context, key string, m *model.Model) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

type modelStore struct {
	client *Client
	logger logging.Logger
}

func NewModelStore(client *Client, log logging.Logger) ModelStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &modelStore{client: client, logger: log.Named("model_store")}
}

func (s *modelStore) objectKey(key string) string {
	return s.client.cfg.Prefix + strings.TrimPrefix(key, "/")
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func (s *modelStore) Get(ctx context.Context, key string) (*model.Model, error) {
	if err := s.client.check(); err != nil {
		return nil, err
	}
	format, err := model.FormatOf(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.api.GetObject(ctx, s.client.cfg.Bucket, s.objectKey(key))
	if err == nil {
		defer obj.Close()
		var data []byte
		if data, err = io.ReadAll(obj); err == nil {
			return model.Parse(data, format)
		}
	}
	if isNotFound(err) {
		return nil, errors.New(errors.ErrCodeModelNotFound, "model object not found").WithDetail(key)
	}
	return nil, errors.Wrap(err, errors.ErrCodeStorageError, "read model object").WithDetail(key)
}

func (s *modelStore) Put(ctx context.Context, key string, m *model.Model) error {
	if err := s.client.check(); err != nil {
		return err
	}
	format, err := model.FormatOf(key)
	if err != nil {
		return err
	}
	data, err := m.Marshal(format)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode model").WithDetail(key)
	}
	contentType := "application/json"
	if format == model.FormatYAML {
		contentType = "application/yaml"
	}
	info, err := s.client.api.PutObject(ctx, s.client.cfg.Bucket, s.objectKey(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "write model object").WithDetail(key)
	}
	s.logger.Info("model stored", logging.String("key", info.Key), logging.Int64("size", info.Size), logging.String("etag", info.ETag))
	return nil
}

func (s *modelStore) Delete(ctx context.Context, key string) error {
	if err := s.client.check(); err != nil {
		return err
	}
	if err := s.client.api.RemoveObject(ctx, s.client.cfg.Bucket, s.objectKey(key), minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "delete model object").WithDetail(key)
	}
	return nil
}

// List returns the keys of every model document under the prefix, sorted.
func (s *modelStore) List(ctx context.Context) ([]string, error) {
	if err := s.client.check(); err != nil {
		return nil, err
	}
	prefix := s.client.cfg.Prefix
	var keys []string
	for obj := range s.client.api.ListObjects(ctx, s.client.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "list model objects")
		}
		if _, err := model.FormatOf(path.Base(obj.Key)); err != nil {
			continue
		}
		keys = append(keys, strings.TrimPrefix(obj.Key, prefix))
	}
	sort.Strings(keys)
	return keys, nil
}
