// Command gomentum runs the momentum evaluation engine against a
// NDJSON tick stream on stdin. Exchange connectivity stays outside;
// any feed adapter that can write one JSON tick per line can drive it.
//
// Tick format:
//
//	{"symbol":"SOL","price":151.2,"volume":420000,"time":"2026-08-28T12:00:00Z"}
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/engine"
	"github.com/evdnx/gomentum/logger"
	"github.com/evdnx/gomentum/store"
	"github.com/evdnx/gomentum/types"
)

type tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	Time   time.Time `json:"time"`
}

func main() {
	configPath := flag.String("config", "gomentum.yaml", "path to YAML configuration")
	flag.Parse()

	log, err := logger.New()
	if err != nil {
		os.Stderr.WriteString("init logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load config", logger.Err(err))
		os.Exit(1)
	}

	st, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		log.Error("open store", logger.Err(err))
		os.Exit(1)
	}
	defer st.Close()

	eng, err := engine.New(cfg, st, log)
	if err != nil {
		log.Error("init engine", logger.Err(err))
		os.Exit(1)
	}
	if err := eng.Start(); err != nil {
		log.Error("start engine", logger.Err(err))
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("metrics endpoint up", logger.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics server", logger.Err(err))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var t tick
			if err := json.Unmarshal(line, &t); err != nil {
				log.Warn("malformed tick", logger.Err(err))
				continue
			}
			if t.Time.IsZero() {
				t.Time = time.Now().UTC()
			}
			eng.OnTick(types.PriceSample{
				Symbol: t.Symbol,
				Time:   t.Time,
				Price:  t.Price,
				Volume: t.Volume,
			})
		}
		if err := scanner.Err(); err != nil {
			log.Error("tick stream read", logger.Err(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case <-done:
		log.Info("tick stream ended")
	}

	eng.Stop()
}
