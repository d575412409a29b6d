// Command replayserver serves historical OHLCV candle data over HTTP and
// a duplex websocket channel, replaying it the way a live exchange feed
// would have delivered it: timeframe switches, jumps to an arbitrary
// date, and debug skip edits all flow through the same transactional
// transition protocol a live feed's state machine would need.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/thrasher-corp/candlereplay/internal/api"
	"github.com/thrasher-corp/candlereplay/internal/candle"
	"github.com/thrasher-corp/candlereplay/internal/config"
	"github.com/thrasher-corp/candlereplay/internal/replaylog"
	"github.com/thrasher-corp/candlereplay/internal/session"
	"github.com/thrasher-corp/candlereplay/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "replayserver",
		Usage: "replay historical candle data as if it were a live feed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a JSON config file"},
			&cli.StringFlag{Name: "data-path", Usage: "directory containing <timeframe>.csv files"},
			&cli.StringFlag{Name: "default-timeframe", Usage: "timeframe a new session starts on"},
			&cli.IntFlag{Name: "visible-window-size", Usage: "number of candles held in a chart window"},
			&cli.IntFlag{Name: "port", Usage: "HTTP listen port"},
			&cli.StringFlag{Name: "web-dir", Usage: "directory of static web assets to serve at /", Value: "web"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, or error"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlagOverrides(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := replaylog.Setup(cfg.Log); err != nil {
		return err
	}
	replaylog.Infof(replaylog.Global, "starting replayserver on port %d, data path %s", cfg.Port, cfg.DataPath)

	st := store.New(cfg.CandleBounds())
	for _, tf := range candle.All {
		path := cfg.CSVPath(tf)
		if _, statErr := os.Stat(path); statErr != nil {
			replaylog.Warnf(replaylog.StoreMgr, "no historical data for timeframe %s at %s, skipping", tf, path)
			continue
		}
		if err := st.Load(tf, path); err != nil {
			return fmt.Errorf("loading %s: %w", tf, err)
		}
	}

	defaultTF, err := candle.ParseTimeframe(cfg.DefaultTimeframe)
	if err != nil {
		return err
	}
	if !st.Available(defaultTF) {
		return fmt.Errorf("no historical data loaded for default timeframe %s", defaultTF)
	}

	sess, err := session.New("default", st, defaultTF, cfg.VisibleWindowSize)
	if err != nil {
		return fmt.Errorf("building session: %w", err)
	}
	defer sess.Close()

	srv := api.New(sess, c.String("web-dir"))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		replaylog.Infof(replaylog.APISys, "listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		replaylog.Infof(replaylog.Global, "received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func applyFlagOverrides(c *cli.Context, cfg *config.Config) {
	if v := c.String("data-path"); v != "" {
		cfg.DataPath = v
	}
	if v := c.String("default-timeframe"); v != "" {
		cfg.DefaultTimeframe = v
	}
	if v := c.Int("visible-window-size"); v != 0 {
		cfg.VisibleWindowSize = v
	}
	if v := c.Int("port"); v != 0 {
		cfg.Port = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
}
