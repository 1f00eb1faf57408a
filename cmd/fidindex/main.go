// Command fidindex scans NMR dataset trees and maintains their index.
//
// Usage:
//
//	fidindex scan   [-root DIR] [-save]
//	fidindex load   [-root DIR]
//	fidindex info   PATH
//	fidindex export [-root DIR] -o FILE.parquet
//	fidindex fetch  [-root DIR] [-archive DIR] [-all] [PATH...]
//	fidindex publish [-root DIR] [-archive DIR] [-compress zstd|gzip|lz4|none] [PATH...]
//
// Settings not given as flags come from FIDIO_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nmrfx/fidio/fid"
	fids3 "github.com/nmrfx/fidio/fid/s3"
	"github.com/nmrfx/fidio/index"
	"github.com/nmrfx/fidio/internal/config"
	"github.com/nmrfx/fidio/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fidindex:", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.GetString(config.EnvLogLevel, "info"),
		Format: cfg.GetString(config.EnvLogFormat, "console"),
		Fields: map[string]string{"service": "fidindex"},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fidindex:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	serveMetrics(cfg.GetString(config.EnvMetricsAddr, ""), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "scan":
		err = runScan(ctx, cfg, logger, args)
	case "load":
		err = runLoad(ctx, cfg, logger, args)
	case "info":
		err = runInfo(logger, args)
	case "export":
		err = runExport(ctx, cfg, logger, args)
	case "fetch":
		err = runFetch(ctx, cfg, logger, args)
	case "publish":
		err = runPublish(ctx, cfg, logger, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fidindex scan|load|info|export|fetch|publish [flags]")
}

func serveMetrics(addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
}

// rootFlag registers -root, defaulting to FIDIO_ROOT or ".".
func rootFlag(fs *flag.FlagSet, cfg *config.Config) *string {
	return fs.String("root", cfg.GetString(config.EnvRoot, "."), "dataset tree root")
}

func newIndexer(cfg *config.Config, logger *zap.Logger) *index.Indexer {
	return index.New(
		index.WithLogger(logger),
		index.WithConcurrency(cfg.GetInt(config.EnvScanConcurrency, 4)),
	)
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

func runScan(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	root := rootFlag(fs, cfg)
	save := fs.Bool("save", true, "write "+index.SidecarFile)
	_ = fs.Parse(args)

	ix := newIndexer(cfg, logger)
	var (
		sums []*index.Summary
		err  error
	)
	if *save {
		sums, err = ix.ScanAndSave(ctx, *root)
	} else {
		sums, err = ix.Scan(ctx, *root)
	}
	if err != nil {
		return err
	}
	printSummaries(sums)
	return nil
}

func runLoad(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	root := rootFlag(fs, cfg)
	_ = fs.Parse(args)

	sums, err := newIndexer(cfg, logger).LoadOrScan(ctx, *root)
	if err != nil {
		return err
	}
	printSummaries(sums)
	return nil
}

func runInfo(logger *zap.Logger, args []string) error {
	if len(args) != 1 {
		return errors.New("info takes one path")
	}
	data, err := fid.Open(args[0], fid.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = data.Close() }()

	meta := data.Metadata()
	fmt.Printf("path:     %s\nformat:   %s\nvectors:  %d\n", data.Path(), data.Kind(), data.NVectors())
	fmt.Printf("sequence: %s\nuser:     %s\nsolvent:  %s\n", meta.Sequence, meta.User, meta.Solvent)
	if !meta.Time.IsZero() {
		fmt.Printf("time:     %s\n", meta.Time.Format(time.RFC3339))
	}
	g := data.Geometry()
	for dim := range g.NDim() {
		fmt.Println(g.Descriptor(dim))
	}
	if s := data.Schedule(); s != nil {
		fmt.Printf("schedule: %d points (%.1f%%)\n", s.Len(), 100*s.Fraction())
	}
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	root := rootFlag(fs, cfg)
	out := fs.String("o", "index.parquet", "output Parquet file")
	_ = fs.Parse(args)

	sums, err := newIndexer(cfg, logger).LoadOrScan(ctx, *root)
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := index.ExportParquet(f, sums); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("exported index", zap.String("path", *out), zap.Int("datasets", len(sums)))
	return nil
}

func runFetch(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	root := rootFlag(fs, cfg)
	all := fs.Bool("all", false, "fetch every dataset in the remote index")
	archive := fs.String("archive", cfg.GetString(config.EnvArchiveDir, ""), "local archive directory used instead of S3")
	_ = fs.Parse(args)

	store, err := openArchive(ctx, cfg, *archive)
	if err != nil {
		return err
	}

	remote := index.NewRemote(store,
		index.WithRemoteLogger(logger),
		index.WithFetchRate(cfg.GetFloat(config.EnvFetchRate, 0)))
	sums, err := remote.LoadIndex(ctx)
	if err != nil {
		return err
	}
	remote.SyncPresence(*root, sums)

	wanted := make(map[string]bool)
	for _, p := range fs.Args() {
		wanted[p] = true
	}
	var failed int
	for _, s := range sums {
		if s.Present || (!*all && !wanted[s.Path]) {
			continue
		}
		if err := remote.Fetch(ctx, s, *root); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
		}
	}
	if err := index.Save(*root, sums); err != nil {
		return err
	}
	printSummaries(sums)
	if failed > 0 {
		return fmt.Errorf("%d fetches failed", failed)
	}
	return nil
}

func runPublish(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	root := rootFlag(fs, cfg)
	archive := fs.String("archive", cfg.GetString(config.EnvArchiveDir, ""), "local archive directory used instead of S3")
	compression := fs.String("compress", "zstd", "object compression: zstd, gzip, lz4 or none")
	_ = fs.Parse(args)

	comp, err := fid.CompressorNamed(*compression)
	if err != nil {
		return err
	}
	store, err := openArchive(ctx, cfg, *archive)
	if err != nil {
		return err
	}
	sums, err := newIndexer(cfg, logger).LoadOrScan(ctx, *root)
	if err != nil {
		return err
	}

	remote := index.NewRemote(store,
		index.WithRemoteLogger(logger),
		index.WithFetchRate(cfg.GetFloat(config.EnvFetchRate, 0)))
	wanted := make(map[string]bool)
	for _, p := range fs.Args() {
		wanted[p] = true
	}
	var objects int
	for _, s := range sums {
		if !s.Present || (len(wanted) > 0 && !wanted[s.Path]) {
			continue
		}
		n, err := remote.Publish(ctx, s, *root, comp)
		objects += n
		if err != nil {
			return err
		}
	}
	if err := remote.PublishIndex(ctx, sums, comp); err != nil {
		return err
	}
	logger.Info("publish complete", zap.Int("datasets", len(sums)), zap.Int("objects", objects))
	return nil
}

// openArchive returns the archive store: a local directory when one is
// given, S3 otherwise.
func openArchive(ctx context.Context, cfg *config.Config, dir string) (fid.Store, error) {
	if dir != "" {
		return fid.NewFS(dir)
	}
	s3cfg := cfg.GetS3Config()
	if s3cfg.Bucket == "" {
		return nil, fmt.Errorf("%s or %s is required", config.EnvS3Bucket, config.EnvArchiveDir)
	}
	client, err := fids3.NewClient(ctx, fids3.ClientConfig{
		Region:       s3cfg.Region,
		Endpoint:     s3cfg.Endpoint,
		UsePathStyle: s3cfg.PathStyle,
		Credentials:  fids3.StaticCredentials(s3cfg.AccessKey, s3cfg.SecretKey),
		MaxAttempts:  s3cfg.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return fids3.New(client, fids3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix})
}

func printSummaries(sums []*index.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tVENDOR\tND\tNUCLEI\tSEQ\tTIME\tPRESENT\tPROCESSED")
	for _, s := range sums {
		t := ""
		if !s.Time.IsZero() {
			t = s.Time.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%t\t%s\n",
			s.Path, s.Vendor, s.NDim, s.Isotopes, s.Sequence, t, s.Present, s.SelectedProcessedData())
	}
	_ = w.Flush()
}
