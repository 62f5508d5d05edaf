package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Bastien2203/pi-medias/config"
	"github.com/Bastien2203/pi-medias/core/api"
	"github.com/Bastien2203/pi-medias/core/api/apitest"
	"github.com/Bastien2203/pi-medias/core/auth"
	"github.com/Bastien2203/pi-medias/model"
	"github.com/Bastien2203/pi-medias/session"
	"github.com/Bastien2203/pi-medias/storage"

	"github.com/stretchr/testify/require"
)

func TestCredentialsPrompt(t *testing.T) {
	authUsername, authPassword = "", ""
	u, p, err := credentials(strings.NewReader("alice\nsecret\n"))
	require.NoError(t, err)
	require.Equal(t, "alice", u)
	require.Equal(t, "secret", p)

	authUsername = "bob"
	t.Cleanup(func() { authUsername = "" })
	u, p, err = credentials(strings.NewReader("pw"))
	require.NoError(t, err)
	require.Equal(t, "bob", u)
	require.Equal(t, "pw", p)

	_, _, err = credentials(strings.NewReader(""))
	require.Error(t, err)
}

func TestPrintMediaTable(t *testing.T) {
	var buf bytes.Buffer
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	require.NoError(t, printMediaTable(&buf, []model.Media{
		{ID: 1, MediaName: "vacation.mp4", MimeType: "video/mp4", CreatedAt: model.NewTimestamp(created)},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "NAME")
	require.Contains(t, lines[1], "vacation.mp4")
	require.Contains(t, lines[1], "2024-05-01 10:00:00")
}

func newTestApp(t *testing.T, srv *apitest.Server) *app {
	t.Helper()
	cfg := &config.Config{UploadConcurrency: 2}
	return &app{
		cfg:    cfg,
		client: api.NewClient(srv.URL),
		store:  session.NewFileStore(filepath.Join(t.TempDir(), "session")),
	}
}

func TestTokenDestroysExpiredSession(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	id := srv.AddUser("alice", "pw")
	a := newTestApp(t, srv)
	ctx := context.Background()

	expired, err := auth.IssueToken([]byte("k"), id, -time.Minute, time.Now())
	require.NoError(t, err)
	require.NoError(t, a.store.Save(ctx, expired))

	_, err = a.token(ctx)
	require.ErrorContains(t, err, "expired")

	_, err = a.store.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestCheckSessionClearsOnRejection(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	a := newTestApp(t, srv)
	ctx := context.Background()

	require.NoError(t, a.store.Save(ctx, "stale"))
	_, err := a.client.ListMedia(ctx, "stale")
	err = a.checkSession(ctx, err)
	require.ErrorIs(t, err, api.ErrAuthorization)

	_, err = a.store.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestCheckSessionKeepsSessionOnNotFound(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser("alice", "pw")
	a := newTestApp(t, srv)
	ctx := context.Background()

	token, err := a.client.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)
	require.NoError(t, a.store.Save(ctx, token))

	_, err = a.client.GetMedia(ctx, "42", token)
	require.Error(t, a.checkSession(ctx, err))

	got, err := a.store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, token, got)
}

func TestUploadAll(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	id := srv.AddUser("alice", "pw")
	a := newTestApp(t, srv)
	ctx := context.Background()

	token, err := a.client.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)

	dir := t.TempDir()
	var refs []storage.Ref
	for _, name := range []string{"a.mp3", "b.png", "c.mp4"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
		refs = append(refs, storage.Ref{Key: path})
	}
	refs = append(refs, storage.Ref{Key: filepath.Join(dir, "missing.mp4")})

	failed, err := uploadAll(ctx, a.client, storage.NewSources(a.cfg), refs, token, 2)
	require.NoError(t, err)
	require.Equal(t, 1, failed)
	require.Equal(t, 3, srv.MediaCount(id))

	_, err = uploadAll(ctx, a.client, storage.NewSources(a.cfg), refs[:1], "stale", 2)
	require.True(t, api.SessionRejected(err))
}

func TestDownloadResumesAndFinishesCompletePartial(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser("alice", "pw")
	a := newTestApp(t, srv)
	ctx := context.Background()

	token, err := a.client.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)
	require.NoError(t, a.store.Save(ctx, token))

	content := bytes.Repeat([]byte("0123456789"), 10)
	m, err := a.client.UploadMedia(ctx, bytes.NewReader(content), "clip.mp4", token)
	require.NoError(t, err)

	dir := t.TempDir()

	// interrupted halfway
	half := filepath.Join(dir, "half.mp4")
	require.NoError(t, os.WriteFile(half+".part", content[:40], 0644))
	size, err := download(ctx, a.client, m, token, half)
	require.NoError(t, err)
	require.Equal(t, int64(100), size)
	got, err := os.ReadFile(half)
	require.NoError(t, err)
	require.Equal(t, content, got)

	// every byte already there: the service answers 416
	full := filepath.Join(dir, "full.mp4")
	require.NoError(t, os.WriteFile(full+".part", content, 0644))
	size, err = download(ctx, a.client, m, token, full)
	require.NoError(t, err)
	require.Equal(t, int64(100), size)
	got, err = os.ReadFile(full)
	require.NoError(t, err)
	require.Equal(t, content, got)

	// a partial file larger than the media is an error, not a session problem
	big := filepath.Join(dir, "big.mp4")
	require.NoError(t, os.WriteFile(big+".part", append(content, 'x'), 0644))
	_, err = download(ctx, a.client, m, token, big)
	require.ErrorIs(t, err, api.ErrStream)
	require.Error(t, a.checkSession(ctx, err))

	stored, err := a.store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, token, stored)
}
