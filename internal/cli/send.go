package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/filedrop/uploader/internal/models"
	"github.com/filedrop/uploader/internal/strategy"
	"github.com/filedrop/uploader/internal/upload"
	"github.com/filedrop/uploader/internal/validate"
)

type sendOptions struct {
	strategy  string
	baseURL   string
	chunkSize int64
	maxSize   int64
	accept    string
	single    bool
	quiet     bool
}

func newSendCmd(a *app) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send <file>...",
		Short: "Validate and upload files",
		Long: `Validate the given files against the configured size and type rules and
upload every accepted file concurrently. Rejected files are reported and never sent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, a, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "Upload strategy: standard, chunked or websocket")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Receiver base URL")
	cmd.Flags().Int64Var(&opts.chunkSize, "chunk-size", 0, "Chunk size in bytes for chunked and websocket uploads")
	cmd.Flags().Int64Var(&opts.maxSize, "max-size", 0, "Maximum file size in bytes (0 keeps the configured limit)")
	cmd.Flags().StringVar(&opts.accept, "accept", "", `Accepted types, e.g. ".pdf,image/*"`)
	cmd.Flags().BoolVar(&opts.single, "single", false, "Accept only one file per invocation")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the final summary")

	return cmd
}

// constraints merges the configured validation rules with flags that were set.
func (o *sendOptions) constraints(cmd *cobra.Command, base validate.Constraints) validate.Constraints {
	c := base
	if cmd.Flags().Changed("max-size") {
		c.MaxFileSize = o.maxSize
	}
	if cmd.Flags().Changed("accept") {
		c.Accept = o.accept
	}
	if o.single {
		c.Single = true
	}
	return c
}

func (o *sendOptions) buildStrategy(a *app) (strategy.Strategy, error) {
	kind := a.cfg.GetStrategyKind()
	if o.strategy != "" {
		k, err := strategy.ParseKind(o.strategy)
		if err != nil {
			return nil, err
		}
		kind = k
	}

	sopts := a.cfg.StrategyOptions(kind)
	if o.baseURL != "" {
		sopts.BaseURL = o.baseURL
	}
	if o.chunkSize > 0 {
		sopts.ChunkSize = o.chunkSize
	}
	sopts.HTTPClient = uploadHTTPClient(a.cfg.GetClientTimeout())
	sopts.Logger = a.log

	return strategy.New(kind, sopts)
}

// uploadHTTPClient bounds the wait for the receiver's response to d. The
// request body itself is not timed, so large files on slow links still finish.
func uploadHTTPClient(d time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = d
	return &http.Client{Transport: transport}
}

func runSend(cmd *cobra.Command, a *app, opts *sendOptions, paths []string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	var candidates []models.RawFile
	for _, path := range paths {
		f, closer, err := models.OpenRawFile(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer closer.Close()
		candidates = append(candidates, f)
	}

	result := validate.Validate(candidates, opts.constraints(cmd, a.cfg.Validation))
	for _, r := range result.Rejections {
		fmt.Fprintf(errOut, "rejected: %s\n", r.Error())
	}
	if len(result.Accepted) == 0 {
		return errors.New("no files to upload")
	}

	s, err := opts.buildStrategy(a)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	coordinator := upload.NewCoordinator(s, upload.WithLogger(a.log))
	defer coordinator.Close()
	ctx = upload.NewContext(ctx, coordinator)

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		w := out
		if opts.quiet {
			w = io.Discard
		}
		renderProgress(ctx, w)
	}()

	coordinator.Admit(result.Accepted)
	waitErr := coordinator.Wait(ctx)
	files := coordinator.Files()
	coordinator.Close()
	<-rendered

	renderSummary(out, files)

	if waitErr != nil {
		return fmt.Errorf("upload interrupted: %w", waitErr)
	}
	return sendError(files, len(result.Rejections))
}

// sendError summarizes failed and rejected files as the command's error.
func sendError(files []models.TrackedFile, rejected int) error {
	failed := 0
	for _, f := range files {
		if f.Status == models.UploadStatusError {
			failed++
		}
	}

	switch {
	case failed > 0 && rejected > 0:
		return fmt.Errorf("%d failed, %d rejected", failed, rejected)
	case failed > 0:
		return fmt.Errorf("%d of %d uploads failed", failed, len(files))
	case rejected > 0:
		return fmt.Errorf("%d files rejected", rejected)
	}
	return nil
}

// withTimeout bounds catalogue requests.
func withTimeout(parent context.Context, a *app) (context.Context, context.CancelFunc) {
	if d := a.cfg.GetClientTimeout(); d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}
