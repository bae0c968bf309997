package kubus_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/kubusdb/kubus"
	"github.com/kubusdb/kubus/internal/fakecouch"
	"github.com/kubusdb/kubus/pkg/constants"
	"github.com/kubusdb/kubus/pkg/model"
	"github.com/kubusdb/kubus/pkg/store"
)

type Cat struct {
	model.Document
	Name string `json:"name"`
}

type Cats struct{}

func (Cats) Map() string {
	return "function(doc) { if (doc.type == 'Cat') emit(doc.name, null) }"
}

const dogsView = `views:
  by_name:
    map: function(doc) { if (doc.type == 'Dog') emit(doc.name, null) }
`

type SetupTestSuite struct {
	suite.Suite
	server *fakecouch.Server
	views  string
	logger zerolog.Logger
	ctx    context.Context
}

func TestSetupTestSuite(t *testing.T) {
	suite.Run(t, new(SetupTestSuite))
}

func (s *SetupTestSuite) SetupTest() {
	s.server = fakecouch.NewServer()
	s.views = s.T().TempDir()
	s.logger = zerolog.Nop()
	s.ctx = context.Background()
}

func (s *SetupTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *SetupTestSuite) options() kubus.Options {
	return kubus.Options{
		URL:         s.server.URL(),
		Name:        "pets",
		ViewsFolder: s.views,
		Views:       []any{Cats{}},
		Logger:      &s.logger,
		HTTPClient:  s.server.Client(),
	}
}

func (s *SetupTestSuite) setup(opts kubus.Options) *kubus.DB {
	db, err := kubus.Setup(s.ctx, opts)
	s.Require().NoError(err)
	s.T().Cleanup(func() { s.NoError(db.Close()) })
	return db
}

func (s *SetupTestSuite) TestRejectsMissingOptions() {
	_, err := kubus.Setup(s.ctx, kubus.Options{Name: "pets"})
	s.ErrorIs(err, constants.ErrConfiguration)

	var cerr *kubus.ConfigurationError
	s.Require().ErrorAs(err, &cerr)
	s.Equal("url", cerr.Field)

	_, err = kubus.Setup(s.ctx, kubus.Options{URL: s.server.URL()})
	s.Require().ErrorAs(err, &cerr)
	s.Equal("name", cerr.Field)

	_, err = kubus.Setup(s.ctx, kubus.Options{URL: "ftp://example.com", Name: "pets"})
	s.ErrorIs(err, constants.ErrConfiguration)

	s.Empty(s.server.Requests())
}

func (s *SetupTestSuite) TestSetupSynchronizesViews() {
	s.Require().NoError(os.WriteFile(filepath.Join(s.views, "Dogs.view.yaml"), []byte(dogsView), 0o644))

	db := s.setup(s.options())

	cats, ok := s.server.Doc("pets", "_design/Cats")
	s.Require().True(ok)
	s.Equal("javascript", cats["language"])

	dogs, ok := s.server.Doc("pets", "_design/Dogs")
	s.Require().True(ok)
	s.Contains(dogs["views"], "by_name")

	s.Len(db.Builders(), 2)
	_, err := db.View("Dogs")
	s.NoError(err)
	_, err = db.View("Birds")
	s.ErrorIs(err, constants.ErrNotRegistered)
}

func (s *SetupTestSuite) TestSetupTwiceConverges() {
	s.setup(s.options())
	first, _ := s.server.Doc("pets", "_design/Cats")

	s.setup(s.options())
	second, _ := s.server.Doc("pets", "_design/Cats")

	delete(first, "_rev")
	delete(second, "_rev")
	s.Equal(first, second)
	s.Equal(1, s.server.Count(http.MethodDelete, "/pets/_design/Cats"))
}

func (s *SetupTestSuite) TestMissingViewsFolder() {
	opts := s.options()
	opts.ViewsFolder = filepath.Join(s.views, "nope")
	opts.Views = nil

	db := s.setup(opts)
	s.Empty(db.Builders())
	s.Zero(s.server.Count(http.MethodPut, "/pets/_design"))
}

func (s *SetupTestSuite) TestSkipSync() {
	opts := s.options()
	opts.SkipSync = true

	db := s.setup(opts)
	_, ok := s.server.Doc("pets", "_design/Cats")
	s.False(ok)
	_, err := db.View("Cats")
	s.NoError(err)
}

func (s *SetupTestSuite) TestSyncFailure() {
	s.server.Fail(fakecouch.FailureConfig{
		Method:     http.MethodPut,
		PathPrefix: "/pets/_design/Cats",
		Status:     http.StatusForbidden,
		Error:      "forbidden",
		Reason:     "only admins may write design documents",
	})

	_, err := kubus.Setup(s.ctx, s.options())
	s.Require().Error(err)
	s.ErrorIs(err, constants.ErrSync)
	s.Equal(http.StatusForbidden, store.StatusCode(err))
	s.Contains(err.Error(), "_design/Cats")
}

func (s *SetupTestSuite) TestSharedConnector() {
	connector := &store.Connector{}
	opts := s.options()
	opts.Connector = connector

	first := s.setup(opts)
	opts.Name = "other"
	second := s.setup(opts)

	s.Same(first.Store(), second.Store())
	s.Equal("pets", second.Store().Name())
}

func (s *SetupTestSuite) TestModelsRoundTrip() {
	db := s.setup(s.options())

	cat := &Cat{Name: "Whiskers"}
	res, err := db.Models().Save(s.ctx, cat)
	s.Require().NoError(err)
	s.True(res.OK)

	got, err := model.Get[Cat](s.ctx, db.Models(), res.ID)
	s.Require().NoError(err)
	s.Equal("Whiskers", got.Name)
	s.Equal("Cat", got.Type)

	_, err = db.Models().Delete(s.ctx, got)
	s.Require().NoError(err)
	_, err = model.Get[Cat](s.ctx, db.Models(), res.ID)
	s.ErrorIs(err, constants.ErrNotFound)
}
