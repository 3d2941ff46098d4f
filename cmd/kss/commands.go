package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	ks "github.com/thalesfsp/kernelsearch"
	"github.com/thalesfsp/kernelsearch/internal/cache"
	"github.com/thalesfsp/kernelsearch/internal/dataset"
	"github.com/thalesfsp/kernelsearch/internal/gp"
)

// --- Global Command Variables ---
var (
	configPath  string
	logFormat   string
	verbose     bool
	color       bool
	dataPath    string
	resultsPath string
	cacheDir    string
	metricsAddr string
	acquisition string
	workers     int
	maxLevel    int
	criterion   string
	stripMasks  bool
	kernelText  string
	ndim        int
	kinds       string

	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:           "kss",
		Short:         "Search Gaussian-process covariance structures",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}

			logger = newLogger(logFormat, verbose)
			slog.SetDefault(logger)

			return nil
		},
	}

	searchCmd = &cobra.Command{
		Use:   "search",
		Short: "Run a structure search over a CSV dataset",
		RunE:  runSearch,
	}

	bestCmd = &cobra.Command{
		Use:   "best",
		Short: "Print the best expression recorded in a results file",
		RunE:  runBest,
	}

	expandCmd = &cobra.Command{
		Use:   "expand",
		Short: "Print the grammar neighbours of an expression",
		RunE:  runExpand,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&color, "color", false, "Colour nested parentheses when printing to a terminal")

	searchCmd.Flags().StringVarP(&dataPath, "data", "d", "", "CSV file; the last column is the output")
	searchCmd.Flags().StringVarP(&resultsPath, "results", "o", "", "Results file written after every depth")
	searchCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Directory of the evaluation cache (disabled when empty)")
	searchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	searchCmd.Flags().StringVar(&acquisition, "acquisition", "ucb", "Hyperparameter acquisition function: ucb, pi, ei or ts")
	searchCmd.Flags().IntVar(&workers, "distance-workers", 8, "Goroutines used for covariance distances")
	_ = searchCmd.MarkFlagRequired("data")

	bestCmd.Flags().StringVarP(&resultsPath, "results", "o", "", "Results file to read")
	bestCmd.Flags().IntVar(&maxLevel, "max-level", -1, "Ignore levels deeper than this (-1 reads all)")
	bestCmd.Flags().StringVar(&criterion, "criterion", string(ks.CriterionBIC), "Ranking criterion: bic, nll or laplace")
	bestCmd.Flags().BoolVar(&stripMasks, "strip-masks", false, "Print the expression without masks")
	_ = bestCmd.MarkFlagRequired("results")

	expandCmd.Flags().StringVarP(&kernelText, "kernel", "k", "", "Serialized expression to expand")
	expandCmd.Flags().IntVar(&ndim, "ndim", 1, "Input dimensionality")
	expandCmd.Flags().StringVar(&kinds, "kinds", ks.DefaultBaseKernels, "Comma-separated base-kind whitelist")
	_ = expandCmd.MarkFlagRequired("kernel")

	rootCmd.AddCommand(searchCmd, bestCmd, expandCmd, configCmd)
}

func newLogger(format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runSearch(cmd *cobra.Command, args []string) error {
	config, err := ks.LoadConfig(configPath)
	if err != nil {
		return err
	}

	data, err := dataset.LoadCSV(dataPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	optimizer := gp.DefaultOptimizerConfig()
	optimizer.AcquisitionFunc = gp.AcquisitionByName(acquisition)

	var evaluator ks.Evaluator = gp.NewEvaluator(optimizer, logger)

	if cacheDir != "" {
		cfg := cache.DefaultConfig(cacheDir)
		cfg.Logger = logger

		db, err := cache.Open(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		evaluator = cache.NewEvaluator(evaluator, db, logger)
	}

	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	progress := make(chan ks.ProgressUpdate, 16)
	config.ProgressChan = progress

	done := make(chan struct{})

	go func() {
		defer close(done)

		for u := range progress {
			logger.Debug("progress", "phase", u.Phase, "depth", u.Depth, "candidates", u.Candidates, "best_score", u.BestScore)
		}
	}()

	result, err := ks.Search(ctx, config, data, evaluator,
		ks.WithLogger(logger),
		ks.WithDistance(gp.Distance{MaxGoroutines: workers}),
		ks.WithResultsPath(resultsPath),
	)

	close(progress)
	<-done

	if err != nil {
		return err
	}

	printer := newPrinter(cmd)

	fmt.Fprintf(cmd.OutOrStdout(), "best (%s=%g): %s\n", config.Criterion, result.Best.Score(config.Criterion), printer.Pretty(result.Best.Kernel))

	return nil
}

func runBest(cmd *cobra.Command, args []string) error {
	crit, err := ks.ParseCriterion(criterion)
	if err != nil {
		return err
	}

	best, err := ks.ParseBestResultFile(resultsPath, maxLevel, crit)
	if err != nil {
		return err
	}

	k := best.Kernel
	if stripMasks {
		k = ks.StripMasks(k)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%g\t%s\n", crit, best.Score(crit), newPrinter(cmd).Pretty(k))

	return nil
}

func runExpand(cmd *cobra.Command, args []string) error {
	k, err := ks.ParseKernel(kernelText)
	if err != nil {
		return err
	}

	whitelist, err := ks.ParseKinds(kinds)
	if err != nil {
		return err
	}

	expanded, err := ks.ExpandKernels(ndim, []ks.Kernel{k}, whitelist)
	if err != nil {
		return err
	}

	printer := newPrinter(cmd)
	for _, e := range expanded {
		fmt.Fprintln(cmd.OutOrStdout(), printer.Pretty(e))
	}

	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	config, err := ks.LoadConfig(configPath)
	if err != nil {
		return err
	}

	out, err := config.YAML()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), out)

	return nil
}

// newPrinter colours output only when the command writes to a terminal.
func newPrinter(cmd *cobra.Command) ks.Printer {
	return ks.Printer{Color: color, Renderer: lipgloss.NewRenderer(cmd.OutOrStdout())}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	return srv
}
