package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lojaerp/erp-console/internal/listing"
	"github.com/lojaerp/erp-console/internal/shared"
)

const browseHelp = "Digite um termo para buscar. Comandos: :n, :p, :page N, :size N, :filter chave=valor, :clear, :q"

func newBrowseCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:       "browse ENTIDADE",
		Short:     "Navega interativamente por clientes, produtos, estoque ou vendas",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"clientes", "produtos", "estoque", "vendas"},
		RunE: rt.guard(func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(args[0]) {
			case "clientes":
				return browse(cmd, rt, clientesEntity)
			case "produtos":
				return browse(cmd, rt, produtosEntity)
			case "estoque":
				return browse(cmd, rt, estoqueEntity)
			case "vendas":
				return browse(cmd, rt, vendasEntity)
			default:
				return fmt.Errorf("browse: entidade desconhecida %q", args[0])
			}
		}),
	}
}

// browse reads one instruction per line. Plain lines go through the
// debounced search, so pasted or piped bursts collapse into a single fetch.
// Every settled page is printed once.
func browse[R any](cmd *cobra.Command, rt *runtime, e entity[R]) error {
	ctx := cmd.Context()
	var (
		mu   sync.Mutex
		last string
	)
	show := func(snap listing.Snapshot[R]) {
		if snap.Loading || snap.Err != nil {
			return
		}
		key := fmt.Sprintf("%v|%d|%d", snap.Query, snap.TotalElements, len(snap.Rows))
		mu.Lock()
		defer mu.Unlock()
		if key == last {
			return
		}
		last = key
		_ = renderPage(rt.out, e, snap)
	}

	view, err := e.open(rt.deps(0), show)
	if err != nil {
		return err
	}
	defer view.Close()

	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), browseHelp)
	if err := view.Load(ctx); err != nil && fatal(err) {
		return err
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		quit, err := browseStep(ctx, view, line)
		if err != nil {
			if fatal(err) {
				return err
			}
			if !errors.Is(err, errFetchReported) {
				rt.term.Notify(ctx, shared.Notice{Kind: shared.NoticeError, Message: describe(err)})
			}
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := view.FlushSearch(ctx); err != nil && fatal(err) {
		return err
	}
	return nil
}

var errFetchReported = errors.New("fetch failure already reported")

// fatal reports errors that end the session loop.
func fatal(err error) bool {
	return errors.Is(err, shared.ErrSessionExpired) || errors.Is(err, context.Canceled)
}

func browseStep[R any](ctx context.Context, view lister[R], line string) (quit bool, err error) {
	if !strings.HasPrefix(line, ":") {
		view.SetSearch(ctx, line)
		return false, nil
	}
	verb, arg, _ := strings.Cut(strings.TrimSpace(line[1:]), " ")
	arg = strings.TrimSpace(arg)
	switch verb {
	case "q", "quit":
		return true, nil
	case "n", "next":
		err = view.NextPage(ctx)
	case "p", "prev":
		err = view.PrevPage(ctx)
	case "page":
		n, convErr := strconv.Atoi(arg)
		if convErr != nil {
			return false, fmt.Errorf("página inválida: %q", arg)
		}
		err = view.SetPage(ctx, n-1)
	case "size":
		n, convErr := strconv.Atoi(arg)
		if convErr != nil || n <= 0 {
			return false, fmt.Errorf("tamanho inválido: %q", arg)
		}
		err = view.SetPageSize(ctx, n)
	case "filter":
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return false, fmt.Errorf("use :filter chave=valor")
		}
		err = view.SetFilter(ctx, strings.TrimSpace(key), strings.TrimSpace(value))
	case "clear":
		err = view.ClearFilters(ctx)
	default:
		return false, fmt.Errorf("comando desconhecido: %s", line)
	}
	if err != nil && !fatal(err) {
		// the list controller has already notified the operator
		return false, fmt.Errorf("%w: %w", errFetchReported, err)
	}
	return false, err
}
