package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/listing"
	"github.com/lojaerp/erp-console/internal/shared"
	"github.com/lojaerp/erp-console/internal/views"
)

// lister is the part of a list view the commands drive.
type lister[R any] interface {
	Load(ctx context.Context) error
	Snapshot() listing.Snapshot[R]
	SetSearch(ctx context.Context, text string)
	FlushSearch(ctx context.Context) error
	SetPage(ctx context.Context, n int) error
	NextPage(ctx context.Context) error
	PrevPage(ctx context.Context) error
	SetPageSize(ctx context.Context, size int) error
	SetFilter(ctx context.Context, key, value string) error
	ClearFilters(ctx context.Context) error
	Close()
}

// entity binds a list view to its table layout.
type entity[R any] struct {
	name   string
	open   func(deps views.Deps, onChange func(listing.Snapshot[R])) (lister[R], error)
	header []string
	row    func(o *output, r R) []string
}

var clientesEntity = entity[erp.Cliente]{
	name: "clientes",
	open: func(deps views.Deps, onChange func(listing.Snapshot[erp.Cliente])) (lister[erp.Cliente], error) {
		v, err := views.NewClientesView(deps, nil, onChange)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
	header: []string{"ID", "NOME", "CPF", "TELEFONE", "EMAIL"},
	row: func(_ *output, c erp.Cliente) []string {
		return []string{formatID(c.ID), c.Nome, c.CPF, c.Telefone, c.Email}
	},
}

var produtosEntity = entity[erp.Produto]{
	name: "produtos",
	open: func(deps views.Deps, onChange func(listing.Snapshot[erp.Produto])) (lister[erp.Produto], error) {
		v, err := views.NewProdutosView(deps, nil, onChange)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
	header: []string{"ID", "CÓDIGO", "NOME", "CATEGORIA", "PREÇO"},
	row: func(o *output, p erp.Produto) []string {
		return []string{formatID(p.ID), p.Codigo, p.Nome, p.Categoria, o.money(p.Preco)}
	},
}

var estoqueEntity = entity[views.EstoqueRow]{
	name: "estoque",
	open: func(deps views.Deps, onChange func(listing.Snapshot[views.EstoqueRow])) (lister[views.EstoqueRow], error) {
		v, err := views.NewEstoqueView(deps, nil, onChange)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
	header: []string{"ID", "PRODUTO", "QUANTIDADE", "MÍNIMO", "STATUS"},
	row: func(_ *output, r views.EstoqueRow) []string {
		return []string{formatID(r.ID), r.Produto.Nome, strconv.Itoa(r.Quantidade), strconv.Itoa(r.QuantidadeMinima), string(r.Status)}
	},
}

var vendasEntity = entity[views.VendaRow]{
	name: "vendas",
	open: func(deps views.Deps, onChange func(listing.Snapshot[views.VendaRow])) (lister[views.VendaRow], error) {
		v, err := views.NewVendasView(deps, nil, onChange)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
	header: []string{"ID", "DATA", "CLIENTE", "ITENS", "TOTAL"},
	row: func(o *output, r views.VendaRow) []string {
		return []string{formatID(r.ID), formatDate(r.Venda), r.ClienteNome, strconv.Itoa(len(r.Linhas)), o.money(r.Total)}
	},
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func formatDate(v erp.Venda) string {
	d := v.Date()
	if d.IsZero() {
		return "-"
	}
	return d.Format("02/01/2006 15:04")
}

type filterFunc func() (map[string]string, error)

// newListCommand builds "<entity> list". bind registers extra filter flags
// and returns a function reading them.
func newListCommand[R any](rt *runtime, e entity[R], bind func(cmd *cobra.Command) filterFunc) *cobra.Command {
	var (
		search string
		page   int
		size   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lista " + e.name,
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&search, "search", "", "termo de busca")
	cmd.Flags().IntVar(&page, "page", 1, "página, a partir de 1")
	cmd.Flags().IntVar(&size, "size", 0, "itens por página (padrão: ERP_PAGE_SIZE)")
	var filters filterFunc
	if bind != nil {
		filters = bind(cmd)
	}
	cmd.RunE = rt.guard(func(cmd *cobra.Command, _ []string) error {
		q := listing.Query{Page: page - 1, Search: search}
		if filters != nil {
			m, err := filters()
			if err != nil {
				return err
			}
			q.Filters = m
		}
		return runList(cmd.Context(), rt, e, size, q)
	})
	return cmd
}

func runList[R any](ctx context.Context, rt *runtime, e entity[R], size int, q listing.Query) error {
	deps := rt.deps(size)
	deps.Initial = q
	view, err := e.open(deps, nil)
	if err != nil {
		return err
	}
	defer view.Close()

	if err := view.Load(ctx); err != nil {
		return err
	}
	snap := view.Snapshot()
	if snap.TotalPages > 0 && snap.Query.Page >= snap.TotalPages {
		if err := view.SetPage(ctx, snap.TotalPages-1); err != nil {
			return err
		}
		snap = view.Snapshot()
	}
	return renderPage(rt.out, e, snap)
}

type pageView[R any] struct {
	Rows          []R    `json:"rows"`
	Page          int    `json:"page"`
	TotalPages    int    `json:"totalPages"`
	TotalElements int    `json:"totalElements"`
	Window        string `json:"window"`
}

func renderPage[R any](o *output, e entity[R], snap listing.Snapshot[R]) error {
	window := shared.FormatWindow(snap.Window, snap.Query.Page)
	if o.json {
		return o.encode(pageView[R]{
			Rows:          snap.Rows,
			Page:          snap.Query.Page + 1,
			TotalPages:    snap.TotalPages,
			TotalElements: snap.TotalElements,
			Window:        window,
		})
	}
	if len(snap.Rows) == 0 {
		o.line("Nenhum registro encontrado.")
	} else {
		rows := make([][]string, 0, len(snap.Rows))
		for _, r := range snap.Rows {
			rows = append(rows, e.row(o, r))
		}
		if err := o.table(e.header, rows); err != nil {
			return err
		}
	}
	if snap.TotalPages > 0 {
		o.line("Página %d de %d, %d registro(s)   %s", snap.Query.Page+1, snap.TotalPages, snap.TotalElements, window)
	}
	return nil
}
