package minio

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/lupa/pkg/errors"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectAPI) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucket, opts).Error(0)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucket, key, r, size, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectAPI) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *MockObjectAPI) StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucket, key, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockObjectAPI) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucket, key, opts).Error(0)
}

func (m *MockObjectAPI) ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return m.Called(ctx, bucket, opts).Get(0).(<-chan minio.ObjectInfo)
}

type ClientTestSuite struct {
	suite.Suite
	api *MockObjectAPI
	ctx context.Context
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	s.ctx = context.Background()
}

func (s *ClientTestSuite) TestApplyDefaults() {
	cfg := &MinIOConfig{Prefix: "models"}
	applyDefaults(cfg)
	s.Equal(DefaultRegion, cfg.Region)
	s.Equal(DefaultBucket, cfg.Bucket)
	s.Equal("models/", cfg.Prefix)
	s.NotZero(cfg.Timeout)
}

func (s *ClientTestSuite) TestEnsureBucket_Exists() {
	c := NewClientWithAPI(s.api, &MinIOConfig{Bucket: "b"}, logging.NewNopLogger())
	s.api.On("BucketExists", s.ctx, "b").Return(true, nil)

	s.NoError(c.EnsureBucket(s.ctx))
	s.api.AssertNotCalled(s.T(), "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ClientTestSuite) TestEnsureBucket_Creates() {
	c := NewClientWithAPI(s.api, &MinIOConfig{Bucket: "b"}, logging.NewNopLogger())
	s.api.On("BucketExists", s.ctx, "b").Return(false, nil)
	s.api.On("MakeBucket", s.ctx, "b", minio.MakeBucketOptions{Region: DefaultRegion}).Return(nil)

	s.NoError(c.EnsureBucket(s.ctx))
	s.api.AssertExpectations(s.T())
}

func (s *ClientTestSuite) TestEnsureBucket_Error() {
	c := NewClientWithAPI(s.api, &MinIOConfig{Bucket: "b"}, nil)
	s.api.On("BucketExists", s.ctx, "b").Return(false, errors.New("denied"))

	err := c.EnsureBucket(s.ctx)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))
	s.ErrorContains(err, "denied")
}

func (s *ClientTestSuite) TestClosedClient() {
	c := NewClientWithAPI(s.api, &MinIOConfig{}, nil)
	s.NoError(c.Close())
	s.ErrorContains(c.HealthCheck(s.ctx), "closed")
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
