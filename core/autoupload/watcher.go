// Package autoupload sends files dropped into a folder to the media service.
package autoupload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Bastien2203/pi-medias/core/api"
	"github.com/Bastien2203/pi-medias/logger"
	"github.com/Bastien2203/pi-medias/model"
	"github.com/Bastien2203/pi-medias/storage"

	"github.com/fsnotify/fsnotify"
)

// Uploader is the part of the api client the watcher needs.
type Uploader interface {
	UploadMedia(ctx context.Context, content io.Reader, displayName, token string) (*model.Media, error)
}

// TokenSource returns the session token to upload with.
type TokenSource func(ctx context.Context) (string, error)

// Result describes one file handled by the watcher.
type Result struct {
	Path  string
	Media *model.Media
	Err   error
}

// Watcher uploads every new file in a directory once it stopped changing.
type Watcher struct {
	dir    string
	up     Uploader
	token  TokenSource
	settle time.Duration
	tick   time.Duration

	onResult func(Result)
	ready    func() // called once the directory is watched
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle sets how long a file must stay unchanged before it is uploaded.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithResultHandler is called after every upload attempt.
func WithResultHandler(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// New creates a watcher for dir.
func New(dir string, up Uploader, token TokenSource, opts ...Option) *Watcher {
	w := &Watcher{
		dir:    dir,
		up:     up,
		token:  token,
		settle: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.tick = w.settle / 4
	if w.tick < 10*time.Millisecond {
		w.tick = 10 * time.Millisecond
	}
	return w
}

// Run watches until ctx is done or the session is rejected. Files already
// present when Run starts are left alone.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}
	logger.Info("[autoupload] 开始监听目录", logger.String("dir", w.dir))
	if w.ready != nil {
		w.ready()
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && !ignored(event.Name) {
				pending[event.Name] = time.Now()
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, event.Name)
			}

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				if err := w.upload(ctx, path); err != nil {
					return err
				}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[autoupload] 文件监听错误", logger.ErrorField(err))
		}
	}
}

// upload returns an error only when watching should stop.
func (w *Watcher) upload(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}

	token, err := w.token(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	obj, err := storage.OpenLocal(path)
	if err != nil {
		logger.Warn("[autoupload] 打开文件失败", logger.String("path", path), logger.ErrorField(err))
		w.report(Result{Path: path, Err: err})
		return nil
	}
	defer obj.Close()

	m, err := w.up.UploadMedia(ctx, obj, obj.Name, token)
	w.report(Result{Path: path, Media: m, Err: err})
	if err == nil {
		logger.Info("[autoupload] 上传成功",
			logger.String("path", path),
			logger.Int64("media_id", m.ID))
		return nil
	}
	if api.SessionRejected(err) {
		return err
	}
	logger.Warn("[autoupload] 上传失败, 继续监听", logger.String("path", path), logger.ErrorField(err))
	return nil
}

func (w *Watcher) report(r Result) {
	if w.onResult != nil {
		w.onResult(r)
	}
}

// ignored skips hidden files and partial downloads.
func ignored(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part")
}
