package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Bastien2203/pi-medias/storage"

	"github.com/spf13/cobra"
)

var minioCmd = &cobra.Command{
	Use:   "minio <minio://bucket/prefix>",
	Short: "列出 MinIO 中可上传的对象",
	Long: `List the objects an upload of the given MinIO ref would send, without
uploading anything.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		ref, err := storage.ParseRef(args[0])
		if err != nil {
			return err
		}
		if !ref.IsMinio() {
			return errors.New("expected a minio://bucket/prefix ref")
		}
		fmt.Printf("MinIO: %s\n", a.cfg.MinioEndpoint)

		refs, err := storage.NewSources(a.cfg).Expand(ctx, []storage.Ref{ref})
		if err != nil {
			return err
		}
		for _, r := range refs {
			fmt.Println(r)
		}
		fmt.Printf("\n%d objects\n", len(refs))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(minioCmd)
	minioCmd.Example = `  # 列出目录下的所有文件
  pimedias minio minio://camera/2024/`
}
