package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Bastien2203/pi-medias/core/api"
	"github.com/Bastien2203/pi-medias/logger"
	"github.com/Bastien2203/pi-medias/storage"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	uploadName    string
	uploadWorkers int
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path|minio://bucket/key>...",
	Short: "Upload media files",
	Long: `Upload local files or MinIO objects to the media service. A MinIO ref
ending in "/" uploads every object below that prefix.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		if uploadName != "" && len(args) > 1 {
			return errors.New("--name only works with a single file")
		}
		token, err := a.token(ctx)
		if err != nil {
			return err
		}

		refs := make([]storage.Ref, 0, len(args))
		for _, arg := range args {
			ref, err := storage.ParseRef(arg)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		sources := storage.NewSources(a.cfg)
		refs, err = sources.Expand(ctx, refs)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return errors.New("nothing to upload")
		}

		workers := uploadWorkers
		if workers <= 0 {
			workers = a.cfg.UploadConcurrency
		}
		failed, err := uploadAll(ctx, a.client, sources, refs, token, workers)
		if err != nil {
			return a.checkSession(ctx, err)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(refs))
		}
		return nil
	}),
}

// uploadAll uploads refs with at most workers in flight. Individual failures
// are printed and counted; a rejected session aborts the whole batch.
func uploadAll(ctx context.Context, client *api.Client, sources *storage.Sources, refs []storage.Ref, token string, workers int) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	var mu sync.Mutex
	failed := 0

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			err := uploadOne(ctx, client, sources, ref, token)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				return nil
			}
			if api.SessionRejected(err) {
				return err
			}
			failed++
			fmt.Printf("✗ %s: %v\n", ref, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failed, err
	}
	return failed, nil
}

func uploadOne(ctx context.Context, client *api.Client, sources *storage.Sources, ref storage.Ref, token string) error {
	obj, err := sources.Open(ctx, ref)
	if err != nil {
		return err
	}
	defer obj.Close()

	name := obj.Name
	if uploadName != "" {
		name = uploadName
	}
	m, err := client.UploadMedia(ctx, obj, name, token)
	if err != nil {
		return err
	}
	logger.Debug("[cmd/upload] 上传完成", logger.String("ref", ref.String()), logger.Int64("size", obj.Size))
	fmt.Printf("✓ %s -> id %d (%s)\n", ref, m.ID, m.MimeType)
	return nil
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "", "display name, defaults to the file name")
	uploadCmd.Flags().IntVarP(&uploadWorkers, "jobs", "j", 0, "parallel uploads, defaults to UPLOAD_CONCURRENCY")
	uploadCmd.Example = `  # upload a single file under another name
  pimedias upload ./VID_0042.mp4 -n "Beach day"

  # upload a whole MinIO folder, four at a time
  pimedias upload minio://camera/2024/ -j 4`
	rootCmd.AddCommand(uploadCmd)
}
