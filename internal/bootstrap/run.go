package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"svcboot/internal/config"
	"svcboot/internal/logging"
	"svcboot/internal/tlsbundle"
)

// ShutdownTimeout bounds the graceful shutdown of the listeners.
const ShutdownTimeout = 10 * time.Second

// AllInterfaces as host binds the listeners without an address.
const AllInterfaces = "+"

var netListen = net.Listen

// errSkipLaunch marks a missing TLS bundle: the process exits cleanly
// without listening.
var errSkipLaunch = errors.New("skip launching")

type listener struct {
	net.Listener
	name string
	url  string
}

// Run initializes the application and serves it until ctx is cancelled.
// It returns the process exit code.
func Run(ctx context.Context, opts Options) int {
	if err := opts.defaults(); err != nil {
		return 1
	}
	cfg := opts.Config
	log := logging.Component(opts.Logger, cfg.Log, "bootstrap")
	stage := stageOf(opts)

	log.Info("CONFIG", configFields(cfg)...)
	log.Info(stage + " STARTING..")

	a, err := Init(ctx, opts)
	if err != nil {
		log.Error(stage+" ERROR", zap.Error(err))
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Warn("close persistence", zap.Error(err))
		}
	}()

	if h := opts.Hooks.Test; h != nil {
		if err := h(ctx, a.Fiber, cfg, a.Container); err != nil {
			log.Error(stage+" ERROR", zap.Error(err))
			return 1
		}
		log.Info(stage + " END!")
		return 0
	}

	if cfg.Port == 0 {
		log.Warn(stage+" running without port number, skip launching", zap.String("sources", sources(cfg)))
		return 0
	}

	lns, err := a.listen(ctx, opts)
	if errors.Is(err, errSkipLaunch) {
		log.Warn(err.Error())
		return 0
	}
	if err != nil {
		log.Error(stage+" ERROR", zap.Error(err))
		return 1
	}

	if err := a.serve(ctx, lns); err != nil {
		log.Error(stage+" ERROR", zap.Error(err))
		return 1
	}
	log.Info(stage + " END!")
	return 0
}

// Main runs the application until SIGINT or SIGTERM and exits the process.
func Main(opts Options) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, opts)
	stop()
	if opts.Logger != nil {
		_ = opts.Logger.Sync()
	}
	os.Exit(code)
}

func bindAddr(host string, port int) string {
	if host == AllInterfaces {
		host = ""
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// listen opens the TLS listener when HTTPS is configured and the plain one
// unless TLS owns the main port.
func (a *App) listen(ctx context.Context, opts Options) ([]listener, error) {
	cfg := a.Config
	var lns []listener

	closeAll := func() {
		for _, ln := range lns {
			_ = ln.Close()
		}
	}

	if cfg.HTTPSEnabled() {
		tlsConf, err := loadTLS(ctx, opts, cfg.HTTPS)
		if err != nil {
			return nil, err
		}
		ln, err := netListen("tcp", bindAddr(cfg.Host, cfg.TLSPort()))
		if err != nil {
			return nil, fmt.Errorf("https listen: %w", err)
		}
		lns = append(lns, listener{Listener: tls.NewListener(ln, tlsConf), name: "HTTPS", url: cfg.HTTPS.URL})
	}

	if cfg.ServePlain() {
		ln, err := netListen("tcp", bindAddr(cfg.Host, cfg.Port))
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("http listen: %w", err)
		}
		lns = append(lns, listener{Listener: ln, name: "APPLICATION", url: cfg.URL})
	}
	return lns, nil
}

func loadTLS(ctx context.Context, opts Options, h *config.HTTPSConfig) (*tls.Config, error) {
	pfx, err := opts.Bundles.Load(ctx, h.PFX)
	if err != nil {
		where := h.PFX
		if !strings.HasPrefix(where, tlsbundle.ObjectScheme) && !filepath.IsAbs(where) {
			where = filepath.Join(opts.BaseDir, where)
		}
		return nil, fmt.Errorf("could not read PFX at %s, %w: %v", where, errSkipLaunch, err)
	}
	cert, err := tlsbundle.Certificate(pfx, h.Passphrase)
	if err != nil {
		return nil, err
	}
	return tlsbundle.ServerConfig(cert), nil
}

// serve runs every listener until ctx is cancelled or one of them stops,
// then shuts the application down.
func (a *App) serve(ctx context.Context, lns []listener) error {
	stopCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(stopCtx)

	for _, ln := range lns {
		g.Go(func() error {
			// A listener returning nil means the app was shut down from inside.
			defer stop()
			a.log.Info(ln.name+" server started", zap.String("url", ln.url), zap.String("addr", ln.Addr().String()))
			if err := a.Fiber.Listener(ln); err != nil {
				return fmt.Errorf("%s server: %w", strings.ToLower(ln.name), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		err := a.Fiber.ShutdownWithContext(shutdownCtx)
		// Listeners that had not reached Serve yet are not tracked by fiber.
		for _, ln := range lns {
			_ = ln.Close()
		}
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && stopCtx.Err() != nil && errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
