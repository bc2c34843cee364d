package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prividentity/cryptonet-go/internal/service"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".pbm": true, ".pgm": true, ".ppm": true, ".pnm": true, ".pam": true,
}

// enrollLine is one row of the enroll-dir report.
type enrollLine struct {
	File      string `json:"file"`
	RequestID string `json:"request_id,omitempty"`
	UUID      string `json:"uuid,omitempty"`
	Success   bool   `json:"success"`
	Code      int32  `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (a *app) enrollDirCommand() *cobra.Command {
	var (
		workers   int
		configArg string
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "enroll-dir <dir>",
		Short: "Enroll every image under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := imageFiles(args[0])
			if err != nil {
				return err
			}
			cfg, err := configValue(configArg)
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			if workers < 1 {
				workers = a.cfg.Library.SessionPoolSize
			}
			lines, err := a.enrollAll(cmd.Context(), svc, files, cfg, workers, quiet)
			for _, line := range lines {
				if perr := a.printLine(line); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel enrollments (default: session pool size)")
	cmd.Flags().StringVar(&configArg, "config-json", "", "per-call JSON configuration, or @file")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "hide the progress bar")
	return cmd
}

func imageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && imageExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found under %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// enrollAll fans files out to workers and returns one line per file in input
// order. Per-file failures are reported in the lines, not as an error.
func (a *app) enrollAll(ctx context.Context, svc *service.Service, files []string, cfg json.RawMessage, workers int, quiet bool) ([]enrollLine, error) {
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(!quiet),
	)
	defer bar.Close()

	lines := make([]enrollLine, len(files))
	tasks := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				lines[i] = a.enrollFile(ctx, svc, files[i], cfg)
				_ = bar.Add(1)
			}
		}()
	}

feed:
	for i := range files {
		select {
		case tasks <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(tasks)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	failed := 0
	for _, l := range lines {
		if !l.Success {
			failed++
		}
	}
	a.logger.Info("enroll-dir finished", zap.Int("files", len(files)), zap.Int("failed", failed))
	if failed > 0 {
		return lines, fmt.Errorf("%d of %d images failed to enroll", failed, len(files))
	}
	return lines, nil
}

func (a *app) enrollFile(ctx context.Context, svc *service.Service, path string, cfg json.RawMessage) enrollLine {
	line := enrollLine{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		line.Error = err.Error()
		return line
	}
	out, err := svc.Enroll(ctx, data, cfg)
	if out != nil {
		line.RequestID, line.Success, line.Code = out.RequestID, out.Success, out.Code
		var enrolled struct {
			UUID string `json:"uuid"`
		}
		if out.Success && json.Unmarshal(out.Result, &enrolled) == nil {
			line.UUID = enrolled.UUID
		}
	}
	if err != nil {
		line.Success = false
		line.Error = err.Error()
		if errors.Is(err, context.Canceled) {
			line.Error = "canceled"
		}
	}
	return line
}

// printLine writes one compact JSON object per line.
func (a *app) printLine(v any) error {
	return json.NewEncoder(a.out).Encode(v)
}
