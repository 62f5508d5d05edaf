package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Bastien2203/pi-medias/logger"
	"github.com/Bastien2203/pi-medias/model"
)

// ListMedia returns the caller's media in the order the service sent them.
func (c *Client) ListMedia(ctx context.Context, token string) ([]model.Media, error) {
	const op = "list media"

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.authorizedGet(ctx, op, "/media", token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var medias []model.Media
	if err := decodeJSON(op, resp.Body, &medias); err != nil {
		return nil, err
	}
	if medias == nil {
		medias = []model.Media{}
	}
	logger.Debug("[api/media] 获取媒体列表", logger.Int("count", len(medias)))
	return medias, nil
}

// GetMedia fetches one record by id. Not found and unauthorized are both
// AuthorizationError; use NotFound() to tell them apart.
func (c *Client) GetMedia(ctx context.Context, mediaID, token string) (*model.Media, error) {
	const op = "get media"

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.authorizedGet(ctx, op, mediaPath(mediaID), token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var media model.Media
	if err := decodeJSON(op, resp.Body, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// DeleteMedia removes a record and its file on the service.
func (c *Client) DeleteMedia(ctx context.Context, mediaID, token string) error {
	const op = "delete media"

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, op, http.MethodDelete, mediaPath(mediaID), nil)
	if err != nil {
		return err
	}
	setBearer(req, token)

	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reason := drain(resp.Body)
	if !success(resp) {
		logger.Info("[api/media] 删除失败",
			logger.String("media_id", mediaID),
			logger.Int("status", resp.StatusCode),
			logger.String("reason", reason))
		return &AuthorizationError{StatusCode: resp.StatusCode}
	}
	return nil
}

// OpenStream opens the playable url of m for reading, starting at offset
// bytes. The token is only sent when the url lives on the service itself,
// and only then can a failure be an AuthorizationError; other failures are
// StreamError. The caller must close the returned reader.
func (c *Client) OpenStream(ctx context.Context, m *model.Media, token string, offset int64) (io.ReadCloser, error) {
	const op = "open stream"

	if !m.Playable() {
		return nil, &TransportError{Op: op, Err: ErrNoPlayableURL}
	}
	target, err := c.resolve(m.URL)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	ctx, cancel := c.streamContext(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		cancel()
		return nil, &TransportError{Op: op, Err: err}
	}
	c.decorate(req)
	if c.sameOrigin(target) {
		setBearer(req, token)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.do(op, req)
	if err != nil {
		cancel()
		return nil, err
	}
	if !success(resp) {
		reason := drain(resp.Body)
		resp.Body.Close()
		cancel()
		logger.Info("[api/media] 打开媒体流失败",
			logger.String("url", target.Redacted()),
			logger.Int("status", resp.StatusCode),
			logger.String("reason", reason))
		return nil, streamFailure(resp, c.sameOrigin(target))
	}
	if offset > 0 && resp.StatusCode != http.StatusPartialContent {
		// range ignored, skip ahead ourselves
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			resp.Body.Close()
			cancel()
			return nil, &TransportError{Op: op, Err: fmt.Errorf("skip to offset %d: %w", offset, err)}
		}
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// streamFailure classifies a non-success answer from a media url. Only the
// service itself can reject the session; a foreign file host never saw the
// token.
func streamFailure(resp *http.Response, ownOrigin bool) error {
	switch {
	case ownOrigin && (resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusNotFound):
		return &AuthorizationError{StatusCode: resp.StatusCode}
	default:
		return &StreamError{StatusCode: resp.StatusCode, Size: unsatisfiedSize(resp)}
	}
}

// unsatisfiedSize reads the total from "Content-Range: bytes */<size>".
func unsatisfiedSize(resp *http.Response) int64 {
	rest, ok := strings.CutPrefix(resp.Header.Get("Content-Range"), "bytes */")
	if !ok {
		return -1
	}
	size, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return -1
	}
	return size
}

func (c *Client) authorizedGet(ctx context.Context, op, path, token string) (*http.Response, error) {
	req, err := c.newRequest(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	setBearer(req, token)

	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	if !success(resp) {
		drain(resp.Body)
		resp.Body.Close()
		return nil, &AuthorizationError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// resolve turns a possibly relative media url into an absolute one.
func (c *Client) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(ref), nil
}

func (c *Client) sameOrigin(u *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return base.Scheme == u.Scheme && base.Host == u.Host
}

func mediaPath(mediaID string) string {
	return "/media/" + url.PathEscape(mediaID)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}
