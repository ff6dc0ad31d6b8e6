// Package views instantiates the list controller for each ERP entity and
// joins rows to the records they reference.
package views

import (
	"context"
	"log/slog"
	"time"

	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/listing"
	"github.com/lojaerp/erp-console/internal/shared"
)

// Filter keys understood by the list endpoints.
const (
	FilterCategoria = "categoria"
	FilterLowStock  = "lowStock"
	FilterValorMin  = "valorMin"
	FilterValorMax  = "valorMax"
)

const (
	// ClienteNotFound labels a sale whose customer is gone.
	ClienteNotFound = "Cliente não encontrado"
	// ProdutoNotFound labels a sale line whose product is gone.
	ProdutoNotFound = "Produto não encontrado"
)

// Deps are shared by every view.
type Deps struct {
	API        *erp.API
	PageSize   int
	Debounce   time.Duration
	MaxVisible int
	Notifier   shared.Notifier
	Logger     *slog.Logger
	// Initial is the first query of views built from these deps. Its Size
	// is ignored in favour of PageSize.
	Initial    listing.Query
}

// Catalogs caches the collections used for joins so the views of one
// process share them.
type Catalogs struct {
	Produtos *listing.Related[int64, erp.Produto]
	Clientes *listing.Related[int64, erp.Cliente]
}

// NewCatalogs builds the shared related collections.
func NewCatalogs(api *erp.API) *Catalogs {
	return &Catalogs{
		Produtos: listing.NewRelated(api.Produtos.All, func(p erp.Produto) int64 { return p.ID }),
		Clientes: listing.NewRelated(api.Clientes.All, func(c erp.Cliente) int64 { return c.ID }),
	}
}

func params(q listing.Query) erp.ListParams {
	return erp.ListParams{Page: q.Page, Size: q.Size, Search: q.Search, Filters: q.Filters}
}

func options[T, R any](deps Deps, name string, fetch listing.FetchFunc[T], join listing.JoinFunc[T, R], onChange func(listing.Snapshot[R])) listing.Options[T, R] {
	return listing.Options[T, R]{
		Name:       name,
		Fetch:      fetch,
		Join:       join,
		PageSize:   deps.PageSize,
		Debounce:   deps.Debounce,
		MaxVisible: deps.MaxVisible,
		Page:       deps.Initial.Page,
		Search:     deps.Initial.Search,
		Filters:    deps.Initial.Filters,
		Notifier:   deps.Notifier,
		Logger:     deps.Logger,
		OnChange:   onChange,
	}
}

// ClientesView lists customers.
type ClientesView struct {
	*listing.Controller[erp.Cliente, erp.Cliente]
	api      *erp.API
	catalogs *Catalogs
}

// NewClientesView wires the customer list.
func NewClientesView(deps Deps, catalogs *Catalogs, onChange func(listing.Snapshot[erp.Cliente])) (*ClientesView, error) {
	fetch := func(ctx context.Context, q listing.Query) (shared.Page[erp.Cliente], error) {
		return deps.API.Clientes.List(ctx, params(q))
	}
	ctrl, err := listing.New(options[erp.Cliente, erp.Cliente](deps, "clientes", fetch, nil, onChange))
	if err != nil {
		return nil, err
	}
	if catalogs == nil {
		catalogs = NewCatalogs(deps.API)
	}
	return &ClientesView{Controller: ctrl, api: deps.API, catalogs: catalogs}, nil
}

// Create registers a customer and refreshes the page.
func (v *ClientesView) Create(ctx context.Context, c erp.Cliente) error {
	return v.mutate(ctx, func(ctx context.Context) error {
		_, err := v.api.Clientes.Create(ctx, c)
		return err
	})
}

// Update replaces a customer and refreshes the page.
func (v *ClientesView) Update(ctx context.Context, id int64, c erp.Cliente) error {
	return v.mutate(ctx, func(ctx context.Context) error {
		_, err := v.api.Clientes.Update(ctx, id, c)
		return err
	})
}

// Delete removes a customer and refreshes the page.
func (v *ClientesView) Delete(ctx context.Context, id int64) error {
	return v.mutate(ctx, func(ctx context.Context) error {
		return v.api.Clientes.Delete(ctx, id)
	})
}

// Import loads customers from a CSV on the server and refreshes the page.
func (v *ClientesView) Import(ctx context.Context, filePath string) (erp.ImportResult, error) {
	var res erp.ImportResult
	err := v.mutate(ctx, func(ctx context.Context) error {
		var err error
		res, err = v.api.Clientes.Import(ctx, filePath)
		return err
	})
	return res, err
}

func (v *ClientesView) mutate(ctx context.Context, fn func(context.Context) error) error {
	return v.Mutate(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		v.catalogs.Clientes.Invalidate()
		return nil
	})
}

// ProdutosView lists products, optionally narrowed to one category.
type ProdutosView struct {
	*listing.Controller[erp.Produto, erp.Produto]
	api      *erp.API
	catalogs *Catalogs
}

// NewProdutosView wires the product list.
func NewProdutosView(deps Deps, catalogs *Catalogs, onChange func(listing.Snapshot[erp.Produto])) (*ProdutosView, error) {
	fetch := func(ctx context.Context, q listing.Query) (shared.Page[erp.Produto], error) {
		return deps.API.Produtos.List(ctx, params(q))
	}
	ctrl, err := listing.New(options[erp.Produto, erp.Produto](deps, "produtos", fetch, nil, onChange))
	if err != nil {
		return nil, err
	}
	if catalogs == nil {
		catalogs = NewCatalogs(deps.API)
	}
	return &ProdutosView{Controller: ctrl, api: deps.API, catalogs: catalogs}, nil
}

// SetCategoria filters by category; empty clears the filter.
func (v *ProdutosView) SetCategoria(ctx context.Context, categoria string) error {
	return v.SetFilter(ctx, FilterCategoria, categoria)
}

// Categories lists the categories present in the catalogue.
func (v *ProdutosView) Categories(ctx context.Context) ([]string, error) {
	produtos, err := v.catalogs.Produtos.Items(ctx)
	if err != nil {
		return nil, err
	}
	return erp.Categories(produtos), nil
}

// Create registers a product and refreshes the page.
func (v *ProdutosView) Create(ctx context.Context, p erp.Produto) error {
	return v.mutate(ctx, func(ctx context.Context) error {
		_, err := v.api.Produtos.Create(ctx, p)
		return err
	})
}

// Update replaces a product and refreshes the page.
func (v *ProdutosView) Update(ctx context.Context, id int64, p erp.Produto) error {
	return v.mutate(ctx, func(ctx context.Context) error {
		_, err := v.api.Produtos.Update(ctx, id, p)
		return err
	})
}

// Delete removes a product and refreshes the page.
func (v *ProdutosView) Delete(ctx context.Context, id int64) error {
	return v.mutate(ctx, func(ctx context.Context) error {
		return v.api.Produtos.Delete(ctx, id)
	})
}

func (v *ProdutosView) mutate(ctx context.Context, fn func(context.Context) error) error {
	return v.Mutate(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		v.catalogs.Produtos.Invalidate()
		return nil
	})
}
