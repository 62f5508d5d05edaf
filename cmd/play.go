package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Bastien2203/pi-medias/core/api"
	"github.com/Bastien2203/pi-medias/core/utils"
	"github.com/Bastien2203/pi-medias/logger"
	"github.com/Bastien2203/pi-medias/model"

	"github.com/spf13/cobra"
)

var playOutput string

var playCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "Stream a media file to stdout or save it",
	Long: `Stream the content of a media record. Pipe it into a player
(pimedias play 3 | mpv -) or save it with -o; an interrupted save is resumed
on the next run.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		token, err := a.token(ctx)
		if err != nil {
			return err
		}
		m, err := a.client.GetMedia(ctx, args[0], token)
		if err != nil {
			return a.checkSession(ctx, err)
		}

		if playOutput == "" {
			stream, err := a.client.OpenStream(ctx, m, token, 0)
			if err != nil {
				return a.checkSession(ctx, err)
			}
			defer stream.Close()
			_, err = io.Copy(os.Stdout, stream)
			return err
		}

		size, err := download(ctx, a.client, m, token, playOutput)
		if err != nil {
			return a.checkSession(ctx, err)
		}
		fmt.Fprintf(os.Stderr, "Saved %s to %s (%d bytes)\n", m.MediaName, playOutput, size)
		return nil
	}),
}

// download saves m to path, resuming from path.part when present, and
// returns the final size.
func download(ctx context.Context, client *api.Client, m *model.Media, token, path string) (int64, error) {
	offset := utils.PartialSize(path)
	if offset > 0 {
		logger.Info("[cmd/play] 继续下载", logger.String("path", path), logger.Int64("offset", offset))
	}

	stream, err := client.OpenStream(ctx, m, token, offset)
	var streamErr *api.StreamError
	if offset > 0 && errors.As(err, &streamErr) && streamErr.RangeNotSatisfiable() &&
		(streamErr.Size < 0 || streamErr.Size == offset) {
		// nothing left to fetch
		if err := utils.CompletePartial(path); err != nil {
			return 0, err
		}
		return offset, nil
	}
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	n, err := utils.SaveStream(stream, path, offset)
	if err != nil {
		return 0, fmt.Errorf("%w (run again to resume)", err)
	}
	return offset + n, nil
}

func init() {
	playCmd.Flags().StringVarP(&playOutput, "output", "o", "", "save to this file instead of stdout")
	rootCmd.AddCommand(playCmd)
}
