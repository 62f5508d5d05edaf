package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Bastien2203/pi-medias/model"

	"github.com/stretchr/testify/require"
)

func login(t *testing.T, client *Client, username, password string) string {
	t.Helper()
	token, err := client.Authenticate(context.Background(), username, password)
	require.NoError(t, err)
	return token
}

func TestListMediaWithUnknownToken(t *testing.T) {
	t.Parallel()

	_, client := newFake(t)

	medias, err := client.ListMedia(context.Background(), "expired-token")
	require.Nil(t, medias)
	require.ErrorIs(t, err, ErrAuthorization)
	require.EqualError(t, err, "unauthorized")

	var authzErr *AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.Equal(t, http.StatusUnauthorized, authzErr.StatusCode)
	require.False(t, authzErr.NotFound())
}

func TestListMediaWithExpiredSession(t *testing.T) {
	t.Parallel()

	srv, client := newFake(t)
	id := srv.AddUser("alice", "pw")

	_, err := client.ListMedia(context.Background(), srv.TokenFor(id, -time.Minute))
	require.ErrorIs(t, err, ErrAuthorization)
	require.True(t, IsSessionError(err))
}

func TestListMediaReturnsEveryOwnedRecord(t *testing.T) {
	t.Parallel()

	srv, client := newFake(t)
	aliceID := srv.AddUser("alice", "pw")
	srv.AddUser("eve", "pw")
	alice := login(t, client, "alice", "pw")
	eve := login(t, client, "eve", "pw")

	ctx := context.Background()
	for _, name := range []string{"a.mp4", "b.mp3", "c.png"} {
		_, err := client.UploadMedia(ctx, strings.NewReader("content of "+name), name, alice)
		require.NoError(t, err)
	}
	_, err := client.UploadMedia(ctx, strings.NewReader("not yours"), "eve.mp4", eve)
	require.NoError(t, err)

	medias, err := client.ListMedia(ctx, alice)
	require.NoError(t, err)
	require.Len(t, medias, srv.MediaCount(aliceID))
	require.Len(t, medias, 3)

	for i, name := range []string{"a.mp4", "b.mp3", "c.png"} {
		m := medias[i]
		require.Equal(t, name, m.MediaName)
		require.NotZero(t, m.ID)
		require.NotEmpty(t, m.MimeType)
		require.False(t, m.CreatedAt.IsZero())
		// list entries come without url or filename
		require.Empty(t, m.URL)
		require.Empty(t, m.Filename)
	}
}

func TestListMediaKeepsServiceOrder(t *testing.T) {
	t.Parallel()

	client := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"id": 3, "mime_type": "video/mp4", "created_at": "2024-05-01T10:00:00Z", "media_name": "third"},
			{"id": 1, "mime_type": "audio/mpeg", "created_at": "2024-04-01T10:00:00Z", "media_name": "first"},
			{"id": 2, "mime_type": "image/png", "created_at": "2024-04-15T10:00:00Z", "media_name": "second", "url": "http://files/x.png", "filename": "x.png"}
		]`))
	})

	medias, err := client.ListMedia(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, []int64{3, 1, 2}, []int64{medias[0].ID, medias[1].ID, medias[2].ID})
	require.Equal(t, "http://files/x.png", medias[2].URL)
	require.Equal(t, "x.png", medias[2].Filename)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), medias[0].CreatedAt.UTC())
}

func TestListMediaAcceptsTimesWithoutOffset(t *testing.T) {
	t.Parallel()

	client := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": 1, "mime_type": "video/mp4", "created_at": "2024-05-01T10:00:00", "media_name": "a"},
			{"id": 2, "mime_type": "audio/mpeg", "created_at": "2024-05-02 08:30:00", "media_name": "b"}
		]`))
	})

	medias, err := client.ListMedia(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, medias, 2)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), medias[0].CreatedAt.UTC())
	require.Equal(t, time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC), medias[1].CreatedAt.UTC())

	out, err := json.Marshal(medias[0])
	require.NoError(t, err)
	require.Contains(t, string(out), `"created_at":"2024-05-01T10:00:00"`)
}

func TestListMediaNullBody(t *testing.T) {
	t.Parallel()

	client := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	})

	medias, err := client.ListMedia(context.Background(), "tok")
	require.NoError(t, err)
	require.NotNil(t, medias)
	require.Empty(t, medias)
}

func TestGetMediaRoundTrip(t *testing.T) {
	t.Parallel()

	srv, client := newFake(t)
	srv.AddUser("alice", "correct-pw")
	srv.SetFixedToken("alice", "abc123")
	token := login(t, client, "alice", "correct-pw")

	uploaded, err := client.UploadMedia(context.Background(), bytes.NewReader(mp4Header()), "vacation.mp4", token)
	require.NoError(t, err)
	require.Equal(t, int64(1), uploaded.ID)
	require.Equal(t, "vacation.mp4", uploaded.MediaName)
	require.Equal(t, "video/mp4", uploaded.MimeType)

	fetched, err := client.GetMedia(context.Background(), "1", token)
	require.NoError(t, err)
	require.Equal(t, uploaded, fetched)

	req := srv.LastRequest()
	require.Equal(t, "/media/1", req.Path)
	require.Equal(t, "Bearer abc123", req.Header.Get("Authorization"))
}

func TestGetMediaNotFoundCollapsesToAuthorization(t *testing.T) {
	t.Parallel()

	srv, client := newFake(t)
	srv.AddUser("alice", "pw")
	srv.AddUser("eve", "pw")
	alice := login(t, client, "alice", "pw")
	eve := login(t, client, "eve", "pw")

	m, err := client.UploadMedia(context.Background(), strings.NewReader("x"), "secret.mp4", alice)
	require.NoError(t, err)

	for _, tc := range []struct{ id, token string }{
		{"999", alice},
		{"1", eve},
	} {
		_, err := client.GetMedia(context.Background(), tc.id, tc.token)
		require.ErrorIs(t, err, ErrAuthorization)
		require.EqualError(t, err, "unauthorized")

		var authzErr *AuthorizationError
		require.ErrorAs(t, err, &authzErr)
		require.True(t, authzErr.NotFound())
	}
	require.Equal(t, int64(1), m.ID)
}

func TestGetMediaMalformedBody(t *testing.T) {
	t.Parallel()

	client := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "one"}`))
	})

	_, err := client.GetMedia(context.Background(), "1", "tok")
	require.ErrorIs(t, err, ErrTransport)
}

func TestGetMediaEscapesID(t *testing.T) {
	t.Parallel()

	var gotPath string
	client := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.GetMedia(context.Background(), "1/../2", "tok")
	require.ErrorIs(t, err, ErrAuthorization)
	require.Equal(t, "/media/1%2F..%2F2", gotPath)
}

func TestDeleteMedia(t *testing.T) {
	t.Parallel()

	srv, client := newFake(t)
	id := srv.AddUser("alice", "pw")
	token := login(t, client, "alice", "pw")

	m, err := client.UploadMedia(context.Background(), strings.NewReader("bye"), "old.mp3", token)
	require.NoError(t, err)

	require.NoError(t, client.DeleteMedia(context.Background(), "1", token))
	require.Zero(t, srv.MediaCount(id))

	_, err = client.GetMedia(context.Background(), "1", token)
	require.ErrorIs(t, err, ErrAuthorization)

	err = client.DeleteMedia(context.Background(), "1", token)
	var authzErr *AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.True(t, authzErr.NotFound())
	require.Equal(t, int64(1), m.ID)
}

func TestOpenStream(t *testing.T) {
	t.Parallel()

	srv, client := newFake(t)
	srv.AddUser("alice", "pw")
	token := login(t, client, "alice", "pw")

	content := bytes.Repeat([]byte("0123456789"), 1000)
	uploaded, err := client.UploadMedia(context.Background(), bytes.NewReader(content), "clip.mp4", token)
	require.NoError(t, err)
	require.True(t, uploaded.Playable())

	rc, err := client.OpenStream(context.Background(), uploaded, token, 0)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, content, got)

	// same origin as the service, so the session goes along
	require.Equal(t, "Bearer "+token, srv.LastRequest().Header.Get("Authorization"))

	rc, err = client.OpenStream(context.Background(), uploaded, token, 9995)
	require.NoError(t, err)
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, []byte("56789"), got)
	require.Equal(t, "bytes=9995-", srv.LastRequest().Header.Get("Range"))
}

func TestOpenStreamForeignHostGetsNoToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("bytes"))
	}))
	t.Cleanup(files.Close)

	client := NewClient("http://127.0.0.1:1", WithHTTPClient(files.Client()))
	rc, err := client.OpenStream(context.Background(), &model.Media{URL: files.URL + "/x.mp4"}, "secret", 0)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, rc)
	require.NoError(t, rc.Close())
	require.Empty(t, gotAuth)
}

func TestOpenStreamSkipsWhenRangeIgnored(t *testing.T) {
	t.Parallel()

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	t.Cleanup(files.Close)

	client := NewClient(files.URL, WithHTTPClient(files.Client()))
	rc, err := client.OpenStream(context.Background(), &model.Media{URL: "/x.mp4"}, "tok", 4)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "456789", string(got))
}

func TestOpenStreamPastEndIsNotASessionError(t *testing.T) {
	t.Parallel()

	srv, client := newFake(t)
	srv.AddUser("alice", "pw")
	token := login(t, client, "alice", "pw")

	uploaded, err := client.UploadMedia(context.Background(), bytes.NewReader(make([]byte, 100)), "clip.mp4", token)
	require.NoError(t, err)

	_, err = client.OpenStream(context.Background(), uploaded, token, 100)
	require.ErrorIs(t, err, ErrStream)
	require.False(t, SessionRejected(err))

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	require.True(t, streamErr.RangeNotSatisfiable())
	require.Equal(t, int64(100), streamErr.Size)
}

func TestOpenStreamForeignHostFailureKeepsSession(t *testing.T) {
	t.Parallel()

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signed url expired", http.StatusForbidden)
	}))
	t.Cleanup(files.Close)

	client := NewClient("http://127.0.0.1:1", WithHTTPClient(files.Client()))
	_, err := client.OpenStream(context.Background(), &model.Media{URL: files.URL + "/x.mp4"}, "secret", 0)
	require.ErrorIs(t, err, ErrStream)
	require.False(t, IsSessionError(err))
	require.False(t, SessionRejected(err))
}

func TestOpenStreamServerFault(t *testing.T) {
	t.Parallel()

	client := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.OpenStream(context.Background(), &model.Media{URL: "/files/x.mp4"}, "tok", 0)
	require.ErrorIs(t, err, ErrStream)
	require.True(t, IsRetryable(err))
	require.False(t, SessionRejected(err))

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	require.Equal(t, int64(-1), streamErr.Size)
}

func TestOpenStreamFailures(t *testing.T) {
	t.Parallel()

	_, client := newFake(t)

	_, err := client.OpenStream(context.Background(), &model.Media{ID: 1}, "tok", 0)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, ErrNoPlayableURL)

	_, err = client.OpenStream(context.Background(), &model.Media{ID: 1, URL: "/files/missing.mp4"}, "tok", 0)
	var authzErr *AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.True(t, authzErr.NotFound())
}
