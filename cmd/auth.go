package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Bastien2203/pi-medias/core/auth"

	"github.com/spf13/cobra"
)

var (
	authUsername string
	authPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		username, password, err := credentials(os.Stdin)
		if err != nil {
			return err
		}
		token, err := a.client.Authenticate(ctx, username, password)
		if err != nil {
			return err
		}
		if err := a.store.Save(ctx, token); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Printf("Logged in as %s\n", username)
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		if err := a.store.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	}),
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account on the media service",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		username, password, err := credentials(os.Stdin)
		if err != nil {
			return err
		}
		user, err := a.client.Register(ctx, username, password)
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s (id %d), now run `pimedias login`\n", user.Username, user.ID)
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		token, err := a.token(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Service: %s\n", a.client.BaseURL())
		if exp, ok := auth.Expiry(token); ok {
			fmt.Printf("Session expires: %s (in %s)\n",
				exp.Local().Format(time.RFC1123), time.Until(exp).Round(time.Second))
		} else {
			fmt.Println("Session expiry: unknown")
		}
		return nil
	}),
}

// credentials takes the flags, prompting on in for whatever is missing.
func credentials(in io.Reader) (string, string, error) {
	username, password := authUsername, authPassword
	reader := bufio.NewReader(in)
	var err error
	if username == "" {
		if username, err = prompt(reader, "Username: "); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = prompt(reader, "Password: "); err != nil {
			return "", "", err
		}
	}
	if username == "" || password == "" {
		return "", "", errors.New("username and password are required")
	}
	return username, password, nil
}

func prompt(r *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&authUsername, "username", "u", "", "account name")
		c.Flags().StringVarP(&authPassword, "password", "p", "", "account password, prompted when empty")
	}
	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd, whoamiCmd)
}
