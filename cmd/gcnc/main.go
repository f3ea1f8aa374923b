package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/mastercactapus/gsend/dispatch"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.SetFlags(log.Lshortfile)

	cfg, err := parseConfig(os.Args[1:])
	if err == flag.ErrHelp {
		return
	}
	if err != nil {
		log.Fatal(err)
	}

	c, err := openController(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	reg := prometheus.NewRegistry()
	w := dispatch.NewWorker(c, dispatch.WithMetrics(dispatch.NewMetrics(reg)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Run != "" {
		code := runOnce(ctx, os.Stdout, w, c, cfg)
		stop()
		c.Close()
		os.Exit(code)
	}

	l, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatal(err)
	}
	err = serve(ctx, l, w, c, reg, cfg)
	if err != nil {
		log.Fatal(err)
	}
}

// serve runs the API on l until ctx is cancelled, then cancels any active run
// and waits for it to stop before returning.
func serve(ctx context.Context, l net.Listener, w *dispatch.Worker, c controller, reg *prometheus.Registry, cfg *Config) error {
	api := newAPI(context.Background(), w, c, reg, cfg)
	defer api.Close()
	if cfg.Level != "" {
		m, err := loadMesh(cfg.Level)
		if err != nil {
			return err
		}
		api.mesh = m
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
			api.ServeHTTP(w, req)
		}),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Println("Listening on", l.Addr())
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down.")

		w.RequestCancel()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if w.Done() != nil {
			_, err := w.Wait(sctx)
			if err != nil {
				log.Println("ERROR: wait for run:", err)
			}
		}
		// event streams never go idle on their own
		api.Close()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
