package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Bastien2203/pi-medias/session"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "会话存储检查",
	Long:  `Check that the configured session store is reachable and report whether it holds a token.`,
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		switch s := a.store.(type) {
		case *session.FileStore:
			fmt.Printf("Store: file %s\n", s.Path())
		case *session.RedisStore:
			fmt.Printf("Store: redis %s, key %s\n", a.cfg.RedisAddr(), a.cfg.SessionKey)
		}

		_, err := a.store.Load(ctx)
		switch {
		case errors.Is(err, session.ErrNoSession):
			fmt.Println("No session stored")
		case err != nil:
			return err
		default:
			fmt.Println("Session stored")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}
