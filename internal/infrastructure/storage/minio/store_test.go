package minio

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/lupa/internal/intelligence/model"
	"github.com/turtacn/lupa/internal/testutil"
	pkgerrors "github.com/turtacn/lupa/pkg/errors"
)

type StoreTestSuite struct {
	suite.Suite
	api   *MockObjectAPI
	store ModelStore
	ctx   context.Context
}

func (s *StoreTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	s.ctx = context.Background()
	client := NewClientWithAPI(s.api, &MinIOConfig{Bucket: "models", Prefix: "lupa"}, nil)
	s.store = NewModelStore(client, nil)
}

func (s *StoreTestSuite) TestGet_JSON() {
	doc := `{"locale":"en","entities":[{"name":"greeting","patterns":["(hi|hello)"]}]}`
	s.api.On("GetObject", s.ctx, "models", "lupa/greeting.json").Return(io.NopCloser(strings.NewReader(doc)), nil)

	m, err := s.store.Get(s.ctx, "greeting.json")
	s.Require().NoError(err)
	s.Equal([]string{"greeting"}, m.Names())
}

func (s *StoreTestSuite) TestGet_NotFound() {
	s.api.On("GetObject", s.ctx, "models", "lupa/missing.yaml").Return(nil, minio.ErrorResponse{Code: "NoSuchKey"})

	_, err := s.store.Get(s.ctx, "missing.yaml")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeModelNotFound))
}

func (s *StoreTestSuite) TestGet_ReadError() {
	s.api.On("GetObject", s.ctx, "models", "lupa/broken.json").Return(nil, errors.New("connection reset"))

	_, err := s.store.Get(s.ctx, "broken.json")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))
}

func (s *StoreTestSuite) TestGet_UnsupportedExtension() {
	_, err := s.store.Get(s.ctx, "model.txt")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeModelInvalid))
	s.api.AssertNotCalled(s.T(), "GetObject", mock.Anything, mock.Anything, mock.Anything)
}

func (s *StoreTestSuite) TestPut_YAML() {
	var written string
	s.api.On("PutObject", s.ctx, "models", "lupa/greeting.yaml", mock.Anything, mock.AnythingOfType("int64"),
		minio.PutObjectOptions{ContentType: "application/yaml"}).
		Run(func(args mock.Arguments) {
			data, _ := io.ReadAll(args.Get(3).(io.Reader))
			written = string(data)
		}).
		Return(minio.UploadInfo{Key: "lupa/greeting.yaml", Size: 10}, nil)

	s.Require().NoError(s.store.Put(s.ctx, "greeting.yaml", testutil.GreetingModel()))
	m, err := model.Parse([]byte(written), model.FormatYAML)
	s.Require().NoError(err)
	s.Len(m.Entities, 4)
}

func (s *StoreTestSuite) TestDelete() {
	s.api.On("RemoveObject", s.ctx, "models", "lupa/old.json", minio.RemoveObjectOptions{}).Return(nil)
	s.NoError(s.store.Delete(s.ctx, "old.json"))
	s.api.AssertExpectations(s.T())
}

func (s *StoreTestSuite) TestList() {
	ch := make(chan minio.ObjectInfo, 4)
	ch <- minio.ObjectInfo{Key: "lupa/b.yaml"}
	ch <- minio.ObjectInfo{Key: "lupa/notes.txt"}
	ch <- minio.ObjectInfo{Key: "lupa/a.json"}
	close(ch)
	s.api.On("ListObjects", s.ctx, "models", minio.ListObjectsOptions{Prefix: "lupa/", Recursive: true}).Return((<-chan minio.ObjectInfo)(ch))

	keys, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"a.json", "b.yaml"}, keys)
}

func (s *StoreTestSuite) TestList_Error() {
	ch := make(chan minio.ObjectInfo, 1)
	ch <- minio.ObjectInfo{Err: errors.New("denied")}
	close(ch)
	s.api.On("ListObjects", s.ctx, "models", mock.Anything).Return((<-chan minio.ObjectInfo)(ch))

	_, err := s.store.List(s.ctx)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
