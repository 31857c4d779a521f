package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/filedrop/uploader/internal/format"
	"github.com/filedrop/uploader/internal/remote"
)

func newListCmd(a *app) *cobra.Command {
	var (
		baseURL    string
		limit      int
		useMsgpack bool
	)

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List files stored by the receiver",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRemoteClient(a, baseURL)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), a)
			defer cancel()

			files, err := client.List(ctx, limit, useMsgpack)
			if err != nil {
				return fmt.Errorf("failed to list files: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No files found")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSIZE\tUPLOADED")
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.ID, f.Name, format.FormatFileSize(f.Size), format.FormatDate(f.UploadedAt))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Receiver base URL")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of files to list")
	cmd.Flags().BoolVar(&useMsgpack, "msgpack", false, "Request the msgpack listing")

	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:     "rm <file-id>...",
		Aliases: []string{"delete"},
		Short:   "Delete files stored by the receiver",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRemoteClient(a, baseURL)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), a)
			defer cancel()

			for _, id := range args {
				if err := client.Delete(ctx, id); err != nil {
					return fmt.Errorf("failed to delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Receiver base URL")

	return cmd
}

func newRemoteClient(a *app, baseURL string) (*remote.Client, error) {
	if baseURL == "" {
		baseURL = a.cfg.Client.BaseURL
	}
	return remote.NewClient(baseURL, nil)
}
