package catalog

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"exto/internal/cache"
	"exto/internal/config"
	"exto/internal/images"
	"exto/internal/redis"
	"exto/internal/storage"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu      sync.Mutex
	deleted []string
}

func (s *recordingStore) Save(_ context.Context, name string, _ io.Reader, _ string) (string, error) {
	return "/tmp/" + name, nil
}

func (s *recordingStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ref)
	return nil
}

func (s *recordingStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

type fixture struct {
	svc   *Service
	db    *sql.DB
	mr    *miniredis.Miniredis
	store *recordingStore
	user  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	client, err := redis.NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := &recordingStore{}
	svc := NewService(db, cache.New(client, true, cache.WithLogger(zerolog.Nop())), store)
	svc.logger = zerolog.Nop()

	res, err := db.Exec(`INSERT INTO users (username, password_hash, created_at) VALUES ('seller', '', ?)`, time.Now().UTC())
	require.NoError(t, err)
	user, err := res.LastInsertId()
	require.NoError(t, err)
	return &fixture{svc: svc, db: db, mr: mr, store: store, user: user}
}

func upload(name string) *images.UploadedFile {
	return &images.UploadedFile{Filename: name, Size: 1024, Mimetype: "image/png", Path: "/tmp/" + name}
}

func phone() ProductInput {
	return ProductInput{Category: "phones", Title: " Pixel ", Description: "like new", Price: 300}
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	tree, err := f.svc.Categories(context.Background())
	require.NoError(t, err)
	require.Equal(t, categoryTree, tree)
	require.True(t, f.mr.Exists(cache.DefaultPrefix+categoriesCacheKey))

	found, ok := FindCategory(tree, "laptops")
	require.True(t, ok)
	require.Equal(t, "Laptops", found.Name)
	_, ok = FindCategory(tree, "boats")
	require.False(t, ok)

	flat := Flatten(tree)
	require.Equal(t, "electronics", flat[0].Slug)
	require.Equal(t, "phones", flat[1].Slug)
	require.Equal(t, []string{"transport", "cars", "bicycles"}, slugs(tree[2]))
}

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateProduct(ctx, f.user, phone(), []*images.UploadedFile{upload("a.png"), upload("b.png")})
	require.NoError(t, err)
	require.Equal(t, "Pixel", p.Title)
	require.Len(t, p.Images, 2)
	require.Equal(t, "/uploads/a.png", p.Images[0].Path)

	got, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, []string{"/uploads/a.png", "/uploads/b.png"}, pathsOf(got.Images))
	require.True(t, f.mr.Exists(cache.DefaultPrefix+"product:"+strconv.FormatInt(p.ID, 10)))
	require.Empty(t, f.store.Deleted())
}

func TestCreateProductRejectsAndDiscardsUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := upload("c.gif")
	bad.Mimetype = "image/gif"
	_, err := f.svc.CreateProduct(ctx, f.user, phone(), []*images.UploadedFile{upload("a.png"), bad})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Messages, 1)
	require.ElementsMatch(t, []string{"/uploads/a.png", "/uploads/c.gif"}, f.store.Deleted())

	_, err = f.svc.CreateProduct(ctx, f.user, phone(), []*images.UploadedFile{upload("a.png"), upload("A.PNG")})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Messages[0], "duplicate image")

	_, err = f.svc.CreateProduct(ctx, f.user, ProductInput{Category: "boats", Price: -1}, nil)
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Messages, 3)

	list, err := f.svc.ListByUser(ctx, f.user)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestUpdateProductReconcilesImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreateProduct(ctx, f.user, phone(), []*images.UploadedFile{upload("a.png"), upload("b.png"), upload("c.png")})
	require.NoError(t, err)
	_, err = f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)

	in := phone()
	in.Title = "Pixel 8"
	updated, err := f.svc.UpdateProduct(ctx, f.user, p.ID, in, []string{"/uploads/c.png", " /uploads/a.png"}, []*images.UploadedFile{upload("d.png")})
	require.NoError(t, err)
	require.Equal(t, []string{"/uploads/c.png", "/uploads/a.png", "/uploads/d.png"}, pathsOf(updated.Images))
	require.Equal(t, []string{"/uploads/b.png"}, f.store.Deleted())

	got, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Pixel 8", got.Title, "cached product must be invalidated")
	require.Equal(t, pathsOf(updated.Images), pathsOf(got.Images))

	// nil keeps everything.
	updated, err = f.svc.UpdateProduct(ctx, f.user, p.ID, in, nil, nil)
	require.NoError(t, err)
	require.Len(t, updated.Images, 3)
}

func TestUpdateProductOverCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreateProduct(ctx, f.user, phone(), []*images.UploadedFile{upload("a.png"), upload("b.png"), upload("c.png")})
	require.NoError(t, err)

	_, err = f.svc.UpdateProduct(ctx, f.user, p.ID, phone(), nil, []*images.UploadedFile{upload("d.png"), upload("e.png"), upload("f.png")})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"too many images: at most 5 allowed, got 6"}, verr.Messages)
	require.ElementsMatch(t, []string{"/uploads/d.png", "/uploads/e.png", "/uploads/f.png"}, f.store.Deleted())

	got, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 3, "rejected update leaves images untouched")

	_, err = f.svc.UpdateProduct(ctx, f.user, p.ID, phone(), []string{"/uploads/zzz.png"}, nil)
	require.ErrorAs(t, err, &verr)
}

func TestOwnershipAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreateProduct(ctx, f.user, phone(), []*images.UploadedFile{upload("a.png")})
	require.NoError(t, err)

	_, err = f.svc.UpdateProduct(ctx, f.user+1, p.ID, phone(), nil, []*images.UploadedFile{upload("x.png")})
	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, []string{"/uploads/x.png"}, f.store.Deleted())
	require.ErrorIs(t, f.svc.DeleteProduct(ctx, f.user+1, p.ID), ErrForbidden)

	require.NoError(t, f.svc.DeleteProduct(ctx, f.user, p.ID))
	require.Contains(t, f.store.Deleted(), "/uploads/a.png")
	_, err = f.svc.GetProduct(ctx, p.ID)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.ErrorIs(t, f.svc.DeleteProduct(ctx, f.user, p.ID), ErrProductNotFound)
}

func TestListByCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateProduct(ctx, f.user, phone(), nil)
	require.NoError(t, err)
	laptop := phone()
	laptop.Category = "laptops"
	_, err = f.svc.CreateProduct(ctx, f.user, laptop, []*images.UploadedFile{upload("l.png")})
	require.NoError(t, err)

	all, err := f.svc.ListByCategory(ctx, "electronics")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.True(t, f.mr.Exists(cache.DefaultPrefix+"products:category:electronics"))

	phones, err := f.svc.ListByCategory(ctx, "phones")
	require.NoError(t, err)
	require.Len(t, phones, 1)
	require.Empty(t, phones[0].Images)

	_, err = f.svc.CreateProduct(ctx, f.user, phone(), nil)
	require.NoError(t, err)
	require.False(t, f.mr.Exists(cache.DefaultPrefix+"products:category:electronics"), "listing caches are cleared on change")
	phones, err = f.svc.ListByCategory(ctx, "phones")
	require.NoError(t, err)
	require.Len(t, phones, 2)

	_, err = f.svc.ListByCategory(ctx, "boats")
	require.True(t, errors.Is(err, ErrUnknownCategory))
}

func TestWorksWithoutCache(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.db, nil, nil)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, f.user, phone(), []*images.UploadedFile{upload("a.png")})
	require.NoError(t, err)
	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Title, got.Title)
	require.NoError(t, svc.DeleteProduct(ctx, f.user, p.ID))
}

func pathsOf(imgs []images.ImageDescriptor) []string {
	out := make([]string, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, img.Path)
	}
	return out
}
