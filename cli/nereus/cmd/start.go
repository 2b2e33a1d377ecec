package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nereus-network/nereus/internal/chain"
	"github.com/nereus-network/nereus/internal/keyvaluedb/boltdb"
	"github.com/nereus-network/nereus/internal/logger"
	"github.com/nereus-network/nereus/internal/matcher"
	"github.com/nereus-network/nereus/internal/metrics"
)

var log = logger.CreateForPackage()

const (
	defaultChainDBFile   = "chain.db"
	defaultMatcherDBFile = "matcher.db"
	defaultAdminAddr     = "localhost:26660"
	defaultEventBufSize  = 1024
)

type startConfiguration struct {
	base *baseConfiguration

	ChainDBFile   string
	MatcherDBFile string
	AdminAddr     string
	EventBufSize  uint32
}

func newStartCmd(baseConfig *baseConfiguration) *cobra.Command {
	config := &startConfiguration{base: baseConfig}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Starts the nereus node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), config)
		},
	}
	cmd.Flags().StringVar(&config.ChainDBFile, "chain-db", "", fmt.Sprintf("path to the chain database (default $NEREUS_HOME/%s)", defaultChainDBFile))
	cmd.Flags().StringVar(&config.MatcherDBFile, "matcher-db", "", fmt.Sprintf("path to the matcher database (default $NEREUS_HOME/%s)", defaultMatcherDBFile))
	cmd.Flags().StringVar(&config.AdminAddr, "admin-addr", defaultAdminAddr, "admin endpoint address (metrics, status)")
	cmd.Flags().Uint32Var(&config.EventBufSize, "event-buffer-size", defaultEventBufSize, "max pending matcher events")
	return cmd
}

func runStart(ctx context.Context, config *startConfiguration) error {
	if err := os.MkdirAll(config.base.HomeDir, 0700); err != nil {
		return fmt.Errorf("creating home directory: %w", err)
	}
	chainDB, err := boltdb.New(config.chainDBPath())
	if err != nil {
		return fmt.Errorf("opening chain database: %w", err)
	}
	defer func() { _ = chainDB.Close() }()
	matcherDB, err := boltdb.New(config.matcherDBPath())
	if err != nil {
		return fmt.Errorf("opening matcher database: %w", err)
	}
	defer func() { _ = matcherDB.Close() }()

	store, err := chain.NewHistoryStore(chainDB)
	if err != nil {
		return fmt.Errorf("opening block history: %w", err)
	}
	rec := metrics.NewRecorder()
	writer := chain.NewNGWriter(store, rec)
	history := matcher.NewOrderHistory(matcherDB)
	buffer, err := matcher.NewEventBuffer(history, config.EventBufSize, rec)
	if err != nil {
		return fmt.Errorf("creating event buffer: %w", err)
	}

	log.Info("nereus node starting, chain height %d", writer.Height())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := buffer.Process(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return serveAdmin(ctx, config.AdminAddr, writer, rec)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("nereus node stopped")
	return nil
}

// serveAdmin runs the admin HTTP endpoint: node status and metrics. This is
// an operator surface, not the public API.
func serveAdmin(ctx context.Context, addr string, writer *chain.NGWriter, rec *metrics.Recorder) error {
	router := mux.NewRouter()
	router.Path("/api/v1/status").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := struct {
			Height      uint64 `json:"height"`
			LastBlockID string `json:"lastBlockId,omitempty"`
		}{Height: writer.Height()}
		if id, ok := writer.LastBlockID(); ok {
			status.LastBlockID = id.String()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Warning("writing status response: %v", err)
		}
	})
	router.Path("/metrics").Methods(http.MethodGet).Handler(rec.PrometheusHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("admin endpoint failed, %w", err)
	}
}

func (c *startConfiguration) chainDBPath() string {
	if c.ChainDBFile != "" {
		return c.ChainDBFile
	}
	return filepath.Join(c.base.HomeDir, defaultChainDBFile)
}

func (c *startConfiguration) matcherDBPath() string {
	if c.MatcherDBFile != "" {
		return c.MatcherDBFile
	}
	return filepath.Join(c.base.HomeDir, defaultMatcherDBFile)
}
