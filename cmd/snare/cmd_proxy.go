package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/snarehq/snare/internal/errx"
	"github.com/snarehq/snare/pkg/api"
	"github.com/snarehq/snare/pkg/breakpoint"
	"github.com/snarehq/snare/pkg/capture"
	"github.com/snarehq/snare/pkg/gateway"
	"github.com/snarehq/snare/pkg/logging"
	"github.com/snarehq/snare/pkg/mock"
	"github.com/snarehq/snare/pkg/persist"
	"github.com/snarehq/snare/pkg/rewrite"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run a local HTTP proxy that mediates traffic",
	Long: `Run a plain-HTTP forward proxy. Every request flows through the
mediation pipeline: admission filters, mock rules, breakpoints, and the
bounded record store. Rules are loaded from the rule database at startup.

CONNECT tunnels are not supported; point plain-HTTP clients at the proxy.`,
	Example: `  snare proxy --listen 127.0.0.1:8547
  snare proxy --allow-host "*.example.com" --events /tmp/snare.jsonl
  snare proxy --map-host api.example.com=http://localhost:8080`,
	RunE: runProxy,
}

func init() {
	proxyCmd.Flags().String("listen", "127.0.0.1:8547", "Address to bind the proxy server")
	proxyCmd.Flags().Int("max-records", 1000, "Maximum traffic records kept in memory")
	proxyCmd.Flags().StringSlice("allow-host", nil, "Host allowlist pattern (can be repeated; empty allows all)")
	proxyCmd.Flags().StringSlice("deny-host", nil, "Host denylist pattern (can be repeated)")
	proxyCmd.Flags().StringSlice("ignore-path", nil, "Path pattern to pass through unrecorded (can be repeated)")
	proxyCmd.Flags().StringSlice("method", nil, "Intercept only these methods (can be repeated; empty means all)")
	proxyCmd.Flags().Bool("capture-body", true, "Capture response bodies into records")
	proxyCmd.Flags().Int64("max-body-bytes", 0, "Response body bytes kept per record (0 uses the default cap)")
	proxyCmd.Flags().Bool("insecure-tls", false, "Skip upstream certificate verification")
	proxyCmd.Flags().StringSlice("map-host", nil, "Rewrite upstream (pattern=scheme://host:port, can be repeated)")
	proxyCmd.Flags().String("events", "", "Write the audit event stream to this JSON-L file")
	proxyCmd.Flags().Int("events-rotate-mb", 64, "Rotate the event file after this many megabytes")
	proxyCmd.Flags().Duration("shutdown-timeout", 20*time.Second, "Graceful shutdown timeout")

	viper.BindPFlag("proxy.listen", proxyCmd.Flags().Lookup("listen"))
	viper.BindPFlag("proxy.max-records", proxyCmd.Flags().Lookup("max-records"))
	viper.BindPFlag("proxy.allow-host", proxyCmd.Flags().Lookup("allow-host"))
	viper.BindPFlag("proxy.deny-host", proxyCmd.Flags().Lookup("deny-host"))
	viper.BindPFlag("proxy.ignore-path", proxyCmd.Flags().Lookup("ignore-path"))
	viper.BindPFlag("proxy.method", proxyCmd.Flags().Lookup("method"))
	viper.BindPFlag("proxy.capture-body", proxyCmd.Flags().Lookup("capture-body"))
	viper.BindPFlag("proxy.max-body-bytes", proxyCmd.Flags().Lookup("max-body-bytes"))
	viper.BindPFlag("proxy.insecure-tls", proxyCmd.Flags().Lookup("insecure-tls"))
	viper.BindPFlag("proxy.map-host", proxyCmd.Flags().Lookup("map-host"))
	viper.BindPFlag("proxy.events", proxyCmd.Flags().Lookup("events"))
	viper.BindPFlag("proxy.events-rotate-mb", proxyCmd.Flags().Lookup("events-rotate-mb"))

	rootCmd.AddCommand(proxyCmd)
}

func runProxy(cmd *cobra.Command, args []string) error {
	logger := newLogger(viper.GetString("log-level"))

	cfg := api.GatewayConfig{
		Enabled:             true,
		HostAllowList:       viper.GetStringSlice("proxy.allow-host"),
		HostDenyList:        viper.GetStringSlice("proxy.deny-host"),
		IgnorePathPatterns:  viper.GetStringSlice("proxy.ignore-path"),
		AllowedMethods:      viper.GetStringSlice("proxy.method"),
		CaptureResponseBody: viper.GetBool("proxy.capture-body"),
		MaxBodyBytes:        viper.GetInt64("proxy.max-body-bytes"),
	}
	if viper.GetBool("proxy.insecure-tls") {
		cfg.TLSTrust = api.TLSTrustInsecure
	}

	rewriter, err := parseHostMappings(viper.GetStringSlice("proxy.map-host"))
	if err != nil {
		return err
	}

	store := capture.NewStore(viper.GetInt("proxy.max-records"), logger)
	mocks := mock.NewEngine(logger)
	breakpoints := breakpoint.NewEngine(logger)

	if err := loadRules(mocks, breakpoints); err != nil {
		return err
	}

	var emitter *logging.Emitter
	if path := viper.GetString("proxy.events"); path != "" {
		sink := logging.NewRotatingJSONLWriter(path, viper.GetInt("proxy.events-rotate-mb"), 3)
		emitter = logging.NewEmitter(logging.EmitterConfig{
			SessionID: "gw-" + uuid.NewString()[:8],
			App:       "snare",
		}, sink)
		defer emitter.Close()
		store.Register(logging.NewStoreObserver(emitter))
	}

	gw, err := gateway.New(gateway.Options{
		Config:      gateway.NewConfigHolder(cfg),
		Store:       store,
		Mocks:       mocks,
		Breakpoints: breakpoints,
		Rewriter:    rewriter,
		Emitter:     emitter,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	addr := viper.GetString("proxy.listen")
	server := &http.Server{
		Addr:              addr,
		Handler:           &proxyHandler{gateway: gw, logger: logger},
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("proxy listening", "addr", addr, "mock_rules", len(mocks.Rules()), "breakpoint_rules", len(breakpoints.Rules()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errx.Wrap(ErrStartProxy, err)
	}
	return nil
}

func loadRules(mocks *mock.Engine, breakpoints *breakpoint.Engine) error {
	store, err := persist.OpenRuleStore(dbPath())
	if err != nil {
		return errx.Wrap(ErrLoadRules, err)
	}
	defer store.Close()

	mockRules, err := store.LoadMockRules()
	if err != nil {
		return errx.Wrap(ErrLoadRules, err)
	}
	if err := mocks.ReplaceAll(mockRules); err != nil {
		return errx.Wrap(ErrLoadRules, err)
	}

	bpRules, err := store.LoadBreakpointRules()
	if err != nil {
		return errx.Wrap(ErrLoadRules, err)
	}
	if err := breakpoints.ReplaceAll(bpRules); err != nil {
		return errx.Wrap(ErrLoadRules, err)
	}
	return nil
}

func dbPath() string {
	if path := viper.GetString("db"); path != "" {
		return path
	}
	return persist.DefaultDBPath()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func parseHostMappings(specs []string) (rewrite.Rewriter, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	mappings := make([]rewrite.Mapping, 0, len(specs))
	for _, spec := range specs {
		pattern, target, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --map-host %q: expected pattern=scheme://host:port", spec)
		}
		u, err := url.Parse(target)
		if err != nil || u.Scheme == "" || u.Hostname() == "" {
			return nil, fmt.Errorf("invalid --map-host target %q", target)
		}
		mappings = append(mappings, rewrite.Mapping{
			HostPattern: pattern,
			Scheme:      u.Scheme,
			Host:        u.Hostname(),
			Port:        u.Port(),
		})
	}
	return rewrite.NewHostMap(mappings...), nil
}

// proxyHandler serves plain-HTTP forward-proxy requests through the gateway.
type proxyHandler struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// Hop-by-hop headers must not be forwarded upstream.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func (h *proxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		http.Error(w, "CONNECT tunnels are not supported", http.StatusNotImplemented)
		return
	}
	if !r.URL.IsAbs() {
		http.Error(w, "request URI must be absolute (use as a forward proxy)", http.StatusBadRequest)
		return
	}

	outbound, err := http.NewRequestWithContext(r.Context(), r.Method, r.URL.String(), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	outbound.Header = r.Header.Clone()
	for _, name := range hopByHopHeaders {
		outbound.Header.Del(name)
	}

	resp, handled, err := h.gateway.Handle(outbound)
	if !handled {
		resp, err = http.DefaultTransport.RoundTrip(outbound)
	}
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, api.ErrPauseCancelled) || errors.Is(err, api.ErrRequestCancelled) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for k, vals := range resp.Header {
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	for _, name := range hopByHopHeaders {
		header.Del(name)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Debug("copy response body", "error", err)
	}
}
