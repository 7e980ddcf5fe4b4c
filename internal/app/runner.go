package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ggonzalez94/nft-cli/internal/cache"
	"github.com/ggonzalez94/nft-cli/internal/config"
	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/execution"
	"github.com/ggonzalez94/nft-cli/internal/execution/signer"
	"github.com/ggonzalez94/nft-cli/internal/httpx"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/logging"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/out"
	"github.com/ggonzalez94/nft-cli/internal/policy"
	"github.com/ggonzalez94/nft-cli/internal/prompt"
	"github.com/ggonzalez94/nft-cli/internal/providers"
	"github.com/ggonzalez94/nft-cli/internal/providers/opensea"
	"github.com/ggonzalez94/nft-cli/internal/registry"
	"github.com/ggonzalez94/nft-cli/internal/schema"
	"github.com/ggonzalez94/nft-cli/internal/session"
	"github.com/ggonzalez94/nft-cli/internal/version"
)

type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	prompter    prompt.Prompter
	interactive func() bool
	dial        func(ctx context.Context, rpcURL string) (execution.Backend, func(), error)
	newSigner   func(source, privateKey string) (signer.Signer, error)
}

func NewRunner() *Runner {
	r := NewRunnerWithWriters(os.Stdout, os.Stderr)
	r.stdin = os.Stdin
	r.interactive = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
	}
	return r
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout:      stdout,
		stderr:      stderr,
		now:         time.Now,
		interactive: func() bool { return false },
		dial:        dialRPC,
		newSigner:   localSigner,
	}
}

func dialRPC(ctx context.Context, rpcURL string) (execution.Backend, func(), error) {
	client, err := execution.Dial(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func localSigner(source, privateKey string) (signer.Signer, error) {
	s, err := signer.NewLocalSignerFromInputs(source, privateKey)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	logger        *slog.Logger
	chain         id.Chain
	collections   policy.Collections
	cache         *cache.Store
	sessions      session.Store
	market        providers.Marketplace
	marketInfo    model.ProviderInfo
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastProviders []model.ProviderStatus
	sessionID     string
}

// Run executes args and returns the process exit code. SIGINT and SIGTERM
// cancel the command context.
func (r *Runner) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.RunContext(ctx, args)
}

func (r *Runner) RunContext(ctx context.Context, args []string) int {
	state := &runtimeState{runner: r, logger: logging.NewNop()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.ExecuteContext(ctx))
	if err != nil {
		state.renderError("", err)
	}
	state.close()
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.sessions != nil {
		_ = s.sessions.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Agent-first NFT marketplace CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			level, err := logging.ParseLevel(settings.LogLevel)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "parse log level", err)
			}
			s.logger = logging.New(s.runner.stderr, level)

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			chain, err := id.ParseChain(settings.Chain)
			if err != nil {
				return err
			}
			s.chain = chain
			s.collections = policy.NewCollections(settings.AllowCollections, settings.DenyCollections)

			if s.market == nil {
				baseURL := registry.MarketplaceBaseURL(settings.OpenSeaBaseURL, chain.EVMChainID)
				if !registry.IsAllowedMarketplaceURL(baseURL) {
					return clierr.New(clierr.CodeUsage, fmt.Sprintf("marketplace base url %s is not allowed", baseURL))
				}
				client := opensea.New(httpx.New(settings.Timeout, settings.Retries), settings.OpenSeaAPIKey, baseURL)
				s.market = client
				s.marketInfo = client.Info()
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				store, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = store
			}
			if shouldOpenSessions(path) && s.sessions == nil {
				store, err := openSessionStore(settings)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open session store", err)
				}
				s.sessions = store
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted for nested)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Marketplace request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per marketplace request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level on stderr (debug|info|warn|error)")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newListCommand())
	cmd.AddCommand(s.newSessionsCommand())
	cmd.AddCommand(s.newBuyCommand())
	cmd.AddCommand(s.newOfferCommand())
	cmd.AddCommand(s.newFloorCommand())
	cmd.AddCommand(s.newScanCommand())
	cmd.AddCommand(s.newHoldingsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil)
		},
	}
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List marketplace providers and API key metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), []model.ProviderInfo{s.marketInfo}, nil, cacheMetaBypass(), nil)
		},
	})
	return root
}

func openSessionStore(settings config.Settings) (session.Store, error) {
	if settings.SessionBackend == config.SessionBackendRedis {
		return session.NewRedis(settings.RedisAddr, settings.RedisPassword, settings.RedisDB,
			session.WithPrefix(settings.RedisPrefix), session.WithTTL(settings.SessionTTL)), nil
	}
	store, err := session.OpenSQLite(settings.SessionPath, settings.SessionLockPath)
	if err != nil {
		return nil, err
	}
	return store, nil
}

type fetchFn func(ctx context.Context) (data any, providerStatus []model.ProviderStatus, err error)

// runCachedCommand serves a fresh cache entry, otherwise fetches and writes
// through. A stale entry is served with a warning when the marketplace is
// unavailable or rate limiting.
func (s *runtimeState) runCachedCommand(ctx context.Context, commandPath, key string, ttl time.Duration, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	cacheStatus := cacheMetaMiss()
	var staleData any
	staleStatus := cacheMetaMiss()
	staleAvailable := false

	if s.settings.CacheEnabled && s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("cache read failed", "key", key, "error", err)
		}
		if err == nil && cached.Hit {
			var data any
			if err := json.Unmarshal(cached.Value, &data); err == nil {
				entryStatus := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds(), Stale: cached.Stale}
				if !cached.Stale {
					return s.emitSuccess(commandPath, data, nil, entryStatus, nil)
				}
				staleData, staleStatus, staleAvailable = data, entryStatus, true
			}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()
	data, providerStatus, err := fetch(fetchCtx)
	s.captureCommandDiagnostics(nil, providerStatus)
	if err != nil {
		if staleAvailable && staleFallbackAllowed(err) {
			warnings := []string{"marketplace fetch failed; serving stale cached data"}
			s.captureCommandDiagnostics(warnings, providerStatus)
			return s.emitSuccess(commandPath, staleData, warnings, staleStatus, providerStatus)
		}
		return err
	}

	if s.settings.CacheEnabled && s.cache != nil {
		if payload, err := json.Marshal(data); err == nil {
			if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
				s.logger.Warn("cache write failed", "key", key, "error", err)
			} else {
				cacheStatus = model.CacheStatus{Status: "write"}
			}
		}
	}
	return s.emitSuccess(commandPath, data, nil, cacheStatus, providerStatus)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, providers []model.ProviderStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheStatus,
			SessionID: s.sessionID,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.CodeInternal
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		code = cErr.Code
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    int(code),
			Type:    clierr.TypeName(code),
			Message: message,
		},
		Warnings: s.lastWarnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: s.lastProviders,
			Cache:     cacheMetaBypass(),
			SessionID: s.sessionID,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func (s *runtimeState) providerStatus(start time.Time, err error) model.ProviderStatus {
	return model.ProviderStatus{
		Name:      s.marketInfo.Name,
		Status:    statusFromErr(err),
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

func cacheKey(commandPath string, req any) string {
	buf, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(commandPath+"|"), buf...))
	return hex.EncodeToString(sum[:])
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		norm := strings.ToLower(strings.TrimSpace(part))
		if norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		case clierr.CodeNotFound:
			return "not_found"
		}
	}
	return "error"
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass"}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss"}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return clierr.Wrap(clierr.CodeCancelled, "interrupted", err)
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func staleFallbackAllowed(err error) bool {
	cErr, ok := clierr.As(err)
	if !ok {
		return false
	}
	return cErr.Code == clierr.CodeUnavailable || cErr.Code == clierr.CodeRateLimited
}

func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "", "version", "schema", "providers", "providers list",
		"sessions", "sessions list", "sessions show", "sessions delete", "offer":
		return false
	default:
		return true
	}
}

func shouldOpenSessions(commandPath string) bool {
	path := normalizeCommandPath(commandPath)
	return path == "list" || path == "sessions" || strings.HasPrefix(path, "sessions ")
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastProviders = nil
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, providers []model.ProviderStatus) {
	s.lastWarnings = append([]string(nil), warnings...)
	s.lastProviders = append([]model.ProviderStatus(nil), providers...)
}
