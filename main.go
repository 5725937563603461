package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sagernet/sing/common/observable"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tetherproxy/tetherd/internal/dialer"
	"github.com/tetherproxy/tetherd/internal/provision"
	"github.com/tetherproxy/tetherd/internal/proxy"
	"github.com/tetherproxy/tetherd/internal/tether"
)

const (
	defaultSSID       = "tetherd"
	defaultPassphrase = "tetherd1234"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen           = pflag.String("listen", ":8080", "Proxy listen address")
		ssid             = pflag.String("ssid", defaultSSID, "Hotspot SSID to request from the provisioner")
		passphrase       = pflag.String("passphrase", defaultPassphrase, "Hotspot passphrase to request from the provisioner")
		dialTimeout      = pflag.Duration("dial-timeout", 0, "Timeout for outbound DNS lookup and TCP connect. Zero disables.")
		provisionTimeout = pflag.Duration("provision-timeout", provision.DefaultTimeout, "Timeout for provisioner start/stop")
		tcpKeepAlive     = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		verbose          = pflag.Bool("verbose", false, "Enable debug logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	cfg := proxy.Config{
		ListenAddr: *listen,
		KeepAlive:  ka,
		Dialer: dialer.NewDirectDialer(dialer.Config{
			DialTimeout: *dialTimeout,
			KeepAlive:   ka,
		}),
	}

	srv := proxy.NewServer(cfg, logger.Named("proxy"))

	// The host OS owns the hotspot here; platform builds substitute a
	// GroupDriver-backed provisioner.
	prov := provision.WithTimeout(provision.Static{}, *provisionTimeout)

	orch := tether.NewOrchestrator(prov, srv, logger.Named("tether"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, done, err := orch.SubscribeStatus()
	if err != nil {
		return fmt.Errorf("subscribe status: %w", err)
	}
	defer orch.UnSubscribeStatus(sub)
	go logTransitions(ctx, logger, sub, done)

	if err := orch.Start(ctx, *ssid, *passphrase); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), *provisionTimeout)
	defer cancel()
	orch.Stop(stopCtx)

	return nil
}

func logTransitions(ctx context.Context, logger *zap.Logger, sub observable.Subscription[tether.Status], done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case st := <-sub:
			fields := []zap.Field{zap.Stringer("state", st.State)}
			if st.State == tether.StateRunning {
				fields = append(fields, zap.String("ssid", st.SSID))
			}
			if st.Message != "" {
				fields = append(fields, zap.String("message", st.Message))
			}
			logger.Info("tethering state", fields...)
		}
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
