// Command brokerd runs a broker node: it loads configuration, wires the
// registry, cacher, validator, and (if a transporter is configured) the
// transit/cluster layer, then serves a small control API and a Prometheus
// /metrics endpoint until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matgreaves/brokerd/broker"
	"github.com/matgreaves/brokerd/cacher"
	"github.com/matgreaves/brokerd/cluster"
	"github.com/matgreaves/brokerd/config"
	"github.com/matgreaves/brokerd/metrics"
	"github.com/matgreaves/brokerd/transit"
	"github.com/matgreaves/brokerd/transit/serialize"
	"github.com/matgreaves/brokerd/transit/transportnats"
	"github.com/matgreaves/brokerd/validate"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	addr := flag.String("addr", "127.0.0.1:0", "control API listen address")
	runDir := flag.String("run-dir", "", "directory for the daemon's addr file (default ~/.brokerd)")
	flag.Parse()

	cfg, err := config.NewLoader(config.WithConfigPath(*configPath)).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "brokerd: load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	b := broker.New(cfg.BrokerConfig(), broker.WithLogger(log), broker.WithValidator(validate.New()))

	if c := buildCacher(cfg.Cacher); c != nil {
		broker.WithCacher(c)(b)
	}

	reg := prometheus.NewRegistry()
	sink := metrics.New(reg)
	b.Use(sink.BrokerMiddleware())

	var table *cluster.Table
	if cfg.Transporter != "" {
		tr := transportnats.New(strings.TrimPrefix(cfg.Transporter, "nats://"))
		ser := pickSerializer(cfg.Serializer)
		t := transit.New(b, tr, ser, cfg.TransitConfig(), log)
		b.SetRemote(t)

		table = cluster.NewTable(b.Registry(), cfg.HeartbeatTimeout)
		t.SetNodeObserver(table)
		b.SetNodeLister(table)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		log.Fatal("start broker", zap.Error(err))
	}
	if table != nil {
		table.Start()
	}

	httpSrv, ln := startControlServer(*addr, b, reg, log)
	defer ln.Close()

	if *runDir == "" {
		*runDir = defaultRunDir()
	}
	_, cleanup := writeAddrFile(*runDir, ln.Addr().String(), log)
	defer cleanup()

	log.Info("brokerd listening", zap.String("addr", ln.Addr().String()), zap.String("nodeID", cfg.NodeID))

	<-ctx.Done()
	log.Info("brokerd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if table != nil {
		table.Stop()
	}
	if err := b.Stop(shutdownCtx); err != nil {
		log.Error("stop broker", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if l, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = l
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func pickSerializer(name string) serialize.Serializer {
	if name == "msgpack" {
		return serialize.MsgPack{}
	}
	return serialize.JSON{}
}

func buildCacher(cfg config.CacherConfig) broker.Cacher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Driver == "redis" {
		c, err := cacher.NewRedis(cacher.RedisOptions{
			Addr:       cfg.Addr,
			Password:   cfg.Password,
			DB:         cfg.DB,
			DefaultTTL: cfg.DefaultTTL,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "brokerd: redis cacher unavailable, falling back to memory: %v\n", err)
			return cacher.NewMemory(cfg.DefaultTTL, cfg.MaxEntries)
		}
		return c
	}
	return cacher.NewMemory(cfg.DefaultTTL, cfg.MaxEntries)
}

func defaultRunDir() string {
	if dir := os.Getenv("BROKERD_RUN_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "brokerd")
	}
	return filepath.Join(home, ".brokerd")
}

// writeAddrFile writes the control API's listen address atomically, so
// brokerctl never reads a partially-written file, mirroring rigd's own
// addr-file handshake.
func writeAddrFile(dir, addr string, log *zap.Logger) (string, func()) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("mkdir run-dir", zap.Error(err))
		return "", func() {}
	}
	addrFile := filepath.Join(dir, "brokerd.addr")
	tmp := addrFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(addr), 0o644); err != nil {
		log.Warn("write addr file", zap.Error(err))
		return "", func() {}
	}
	if err := os.Rename(tmp, addrFile); err != nil {
		os.Remove(tmp)
		log.Warn("rename addr file", zap.Error(err))
		return "", func() {}
	}
	return addrFile, func() { os.Remove(addrFile) }
}

func startControlServer(addr string, b *broker.Broker, reg *prometheus.Registry, log *zap.Logger) (*http.Server, net.Listener) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/nodes", controlAction(b, "$node.list"))
	mux.HandleFunc("/v1/services", controlAction(b, "$node.services"))
	mux.HandleFunc("/v1/actions", controlAction(b, "$node.actions"))
	mux.HandleFunc("/v1/health", controlAction(b, "$node.health"))
	mux.HandleFunc("/v1/call/", controlCall(b))

	srv := &http.Server{Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal("listen", zap.Error(err))
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("control server", zap.Error(err))
		}
	}()
	return srv, ln
}
