package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "reflow_oven/docs"
	"reflow_oven/internal/config"
	"reflow_oven/internal/handlers"
	"reflow_oven/internal/hardware"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/metrics"
	"reflow_oven/internal/reflow"
	"reflow_oven/internal/repository"
	"reflow_oven/internal/repository/db"
	"reflow_oven/internal/server"
	"reflow_oven/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title                       Reflow Oven Controller API
// @version                     1.0
// @description                 Operator API of the self-calibrating reflow oven controller.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
func main() {
	// load configs/config.yml and REFLOW_* overrides
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level)

	profile, err := reflow.LoadProfile(cfg.Profile.Path)
	if err != nil {
		log.Fatalw("failed to load profile", "err", err, "path", cfg.Profile.Path)
	}

	// open DB
	conn, err := openDB(cfg.DB.Path, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	sensor, outputs, closeIO, err := openOvenIO(ctx, cfg, &wg, log)
	if err != nil {
		log.Fatalw("failed to open oven I/O", "err", err, "source", cfg.Sensor.Source)
	}
	defer closeIO()

	// wire dependencies
	m := metrics.New(metrics.DefaultNamespace)
	repos := repository.NewRepository(conn)
	services := service.NewService(repos, service.Deps{
		Profile:     profile,
		Sensor:      sensor,
		Outputs:     outputs,
		Metrics:     m,
		Log:         log,
		Controller:  cfg.Controller,
		Filter:      cfg.Filter,
		Driver:      cfg.Actuator,
		Calibration: cfg.Calibration,
		Auth:        cfg.Auth,
	})
	apiHandler := handlers.NewHandler(services, log, m.Handler())

	// start control loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := services.Controller.Run(ctx); err != nil {
			log.Fatalw("controller stopped", "err", err)
		}
	}()

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)
	log.Infow("reflow_oven_started", "port", cfg.Port, "profile", profile.Name, "source", cfg.Sensor.Source)

	// graceful shutdown
	waitForShutdown(cancel, &wg, srv, log)
}

// openDB initializes the SQLite database.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		path = "app.db"
	}
	return db.InitDB(path)
}

// openOvenIO returns the thermocouple and the outputs selected by
// sensor.source, plus a close function.
func openOvenIO(ctx context.Context, cfg *config.Config, wg *sync.WaitGroup, log *logger.Logger) (reflow.Sensor, reflow.Outputs, func(), error) {
	switch cfg.Sensor.Source {
	case config.SourceSerial:
		board := hardware.New(cfg.Serial, log)
		// the link outlives ctx so the final heaters-off command still reaches the board
		if err := board.Connect(context.WithoutCancel(ctx)); err != nil {
			if ports, perr := hardware.Ports(); perr == nil {
				log.Infow("available serial ports", "ports", ports)
			}
			return nil, nil, nil, err
		}
		return board, board, func() { _ = board.Close() }, nil
	case config.SourceSim:
		sim := service.NewOvenSimulator(cfg.Simulator)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sim.Run(ctx, config.SimTick)
		}()
		log.Infow("using simulated oven", "ambient_c", cfg.Simulator.AmbientC)
		return sim, sim, func() {}, nil
	}
	return nil, nil, nil, errors.New("unknown sensor source " + cfg.Sensor.Source)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals, stops the control loop
// (aborting an active run with heaters off) and drains HTTP requests.
func waitForShutdown(cancel context.CancelFunc, wg *sync.WaitGroup, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()
	wg.Wait()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
