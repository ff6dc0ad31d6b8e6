// Package cli implements the erpconsole commands on top of the session
// manager, the API client and the list views.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lojaerp/erp-console/internal/apiclient"
	"github.com/lojaerp/erp-console/internal/app"
	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/observability"
	"github.com/lojaerp/erp-console/internal/platform/cache"
	"github.com/lojaerp/erp-console/internal/session"
	"github.com/lojaerp/erp-console/internal/shared"
	"github.com/lojaerp/erp-console/internal/views"
)

// Exit codes returned by Execute.
const (
	ExitOK              = 0
	ExitError           = 1
	ExitUnauthenticated = 2
)

var errNotLoggedIn = errors.New("nenhuma sessão ativa: execute `erpconsole login`")

// Options configures one invocation.
type Options struct {
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Config replaces the environment configuration when set.
	Config     *app.Config
	HTTPClient *http.Client
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Execute runs the command line in opts.Args and returns the process exit
// code.
func Execute(ctx context.Context, opts Options) int {
	opts = opts.withDefaults()
	rt := &runtime{opts: opts}
	defer rt.close()

	root := newRootCommand(rt)
	root.SetArgs(opts.Args)
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	if rt.term == nil || !rt.term.reported() {
		_, _ = fmt.Fprintf(opts.Stderr, "erro: %s\n", describe(err))
	}
	if errors.Is(err, errNotLoggedIn) || errors.Is(err, shared.ErrSessionExpired) {
		return ExitUnauthenticated
	}
	return ExitError
}

func describe(err error) string {
	var apiErr *shared.APIError
	var verr *shared.ValidationError
	var serr *shared.StockError
	switch {
	case errors.As(err, &verr), errors.As(err, &serr):
		return shared.UserMessage(err)
	case errors.As(err, &apiErr):
		if apiErr.Message != "" && !errors.Is(err, shared.ErrSessionExpired) {
			return apiErr.Message
		}
		return shared.UserMessage(err)
	default:
		return err.Error()
	}
}

func newRootCommand(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "erpconsole",
		Short:         "Console da loja: clientes, produtos, estoque, vendas e relatórios",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.setup(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVar(&rt.jsonOutput, "json", false, "imprime a saída em JSON")

	root.AddCommand(
		newLoginCommand(rt),
		newLogoutCommand(rt),
		newWhoamiCommand(rt),
		newClientesCommand(rt),
		newProdutosCommand(rt),
		newEstoqueCommand(rt),
		newVendasCommand(rt),
		newFinanceiroCommand(rt),
		newForecastCommand(rt),
		newRelatoriosCommand(rt),
		newDashboardCommand(rt),
		newBrowseCommand(rt),
	)
	return root
}

// runtime holds what a command needs once configuration is loaded.
type runtime struct {
	opts       Options
	jsonOutput bool

	cfg     *app.Config
	logger  *slog.Logger
	term    *terminal
	out     *output
	metrics *observability.Metrics
	session *session.Manager
	api     *erp.API
	closers []func()
}

func (rt *runtime) setup(ctx context.Context) error {
	cfg := rt.opts.Config
	if cfg == nil {
		loaded, err := app.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	}
	rt.cfg = cfg
	rt.logger = app.NewLogger(cfg, rt.opts.Stderr)
	rt.term = newTerminal(rt.opts.Stderr)
	rt.out = newOutput(rt.opts.Stdout, rt.jsonOutput)

	store, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	rt.session = session.NewManager(session.Options{
		Store:     store,
		Navigator: rt.term,
		Notifier:  rt.term,
		Logger:    rt.logger,
	})

	rt.metrics = observability.NewMetrics("erp_console")
	client, err := apiclient.New(apiclient.Options{
		BaseURL:    cfg.APIURL,
		Timeout:    cfg.APITimeout,
		Tokens:     rt.session,
		Expirer:    rt.session,
		Notifier:   rt.term,
		Logger:     rt.logger,
		Registerer: rt.metrics.Registerer(),
		HTTPClient: rt.opts.HTTPClient,
	})
	if err != nil {
		return err
	}
	rt.session.SetAuthenticator(client)
	rt.api = erp.NewAPI(client, rt.term)

	if cfg.MetricsAddr != "" {
		srv := rt.metrics.Serve(cfg.MetricsAddr, rt.logger)
		rt.closers = append(rt.closers, func() { _ = srv.Close() })
		rt.logger.Debug("metrics listening", slog.String("addr", cfg.MetricsAddr))
	}

	if err := rt.session.Init(ctx); err != nil {
		rt.logger.Warn("restore session", slog.Any("error", err))
	}
	return nil
}

func (rt *runtime) openStore(ctx context.Context) (session.Store, error) {
	if strings.EqualFold(rt.cfg.SessionStore, app.StoreRedis) {
		client, err := cache.New(ctx, rt.cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		return session.NewRedisStore(client, rt.cfg.SessionKeyPrefix), nil
	}
	return session.NewFileStore(rt.cfg.SessionFile), nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// guard wraps a command that needs an authenticated session.
func (rt *runtime) guard(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := rt.session.RequireAuth(cmd.Context()); err != nil {
			if errors.Is(err, session.ErrNotAuthenticated) {
				return errNotLoggedIn
			}
			return err
		}
		rt.term.setPath(routeOf(cmd))
		return run(cmd, args)
	}
}

// deps builds view dependencies; size overrides the configured page size
// when positive.
func (rt *runtime) deps(size int) views.Deps {
	if size <= 0 {
		size = rt.cfg.PageSize
	}
	return views.Deps{
		API:      rt.api,
		PageSize: size,
		Debounce: rt.cfg.SearchDebounce,
		Notifier: rt.term,
		Logger:   rt.logger,
	}
}

func routeOf(cmd *cobra.Command) string {
	parts := strings.Fields(cmd.CommandPath())
	if len(parts) <= 1 {
		return "/"
	}
	return "/" + strings.Join(parts[1:], "/")
}
