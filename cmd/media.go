package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Bastien2203/pi-medias/model"

	"github.com/spf13/cobra"
)

var jsonOutput bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your media",
	Args:    cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		token, err := a.token(ctx)
		if err != nil {
			return err
		}
		medias, err := a.client.ListMedia(ctx, token)
		if err != nil {
			return a.checkSession(ctx, err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, medias)
		}
		return printMediaTable(os.Stdout, medias)
	}),
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one media record",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		token, err := a.token(ctx)
		if err != nil {
			return err
		}
		m, err := a.client.GetMedia(ctx, args[0], token)
		if err != nil {
			return a.checkSession(ctx, err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, m)
		}
		printMedia(os.Stdout, m)
		return nil
	}),
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete media records",
	Args:    cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		token, err := a.token(ctx)
		if err != nil {
			return err
		}
		for _, id := range args {
			if err := a.client.DeleteMedia(ctx, id, token); err != nil {
				return a.checkSession(ctx, fmt.Errorf("delete %s: %w", id, err))
			}
			fmt.Printf("Deleted %s\n", id)
		}
		return nil
	}),
}

func printMediaTable(w io.Writer, medias []model.Media) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tCREATED")
	for _, m := range medias {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.ID, m.MediaName, m.MimeType, m.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printMedia(w io.Writer, m *model.Media) {
	fmt.Fprintf(w, "ID:       %d\n", m.ID)
	fmt.Fprintf(w, "Name:     %s\n", m.MediaName)
	fmt.Fprintf(w, "Type:     %s\n", m.MimeType)
	fmt.Fprintf(w, "Created:  %s\n", m.CreatedAt.Local().Format(time.DateTime))
	if m.Filename != "" {
		fmt.Fprintf(w, "Stored:   %s\n", m.Filename)
	}
	if m.Playable() {
		fmt.Fprintf(w, "URL:      %s\n", m.URL)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{listCmd, getCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	}
	rootCmd.AddCommand(listCmd, getCmd, deleteCmd)
}
