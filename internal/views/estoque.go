package views

import (
	"context"

	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/listing"
	"github.com/lojaerp/erp-console/internal/shared"
)

// EstoqueRow is a stock row joined to its product.
type EstoqueRow struct {
	erp.Estoque
	Produto erp.Produto     `json:"produto"`
	Status  erp.StockStatus `json:"status"`
}

// EstoqueView lists stock levels. Rows whose product no longer exists are
// dropped.
type EstoqueView struct {
	*listing.Controller[erp.Estoque, EstoqueRow]
	api      *erp.API
	catalogs *Catalogs
}

// NewEstoqueView wires the stock list.
func NewEstoqueView(deps Deps, catalogs *Catalogs, onChange func(listing.Snapshot[EstoqueRow])) (*EstoqueView, error) {
	if catalogs == nil {
		catalogs = NewCatalogs(deps.API)
	}
	fetch := func(ctx context.Context, q listing.Query) (shared.Page[erp.Estoque], error) {
		return deps.API.Estoque.List(ctx, params(q))
	}
	join := func(ctx context.Context, rows []erp.Estoque) ([]EstoqueRow, error) {
		produtos, err := catalogs.Produtos.Index(ctx)
		if err != nil {
			return nil, err
		}
		return JoinEstoque(rows, produtos), nil
	}
	ctrl, err := listing.New(options(deps, "estoque", fetch, join, onChange))
	if err != nil {
		return nil, err
	}
	return &EstoqueView{Controller: ctrl, api: deps.API, catalogs: catalogs}, nil
}

// JoinEstoque attaches products to stock rows, dropping orphans.
func JoinEstoque(rows []erp.Estoque, produtos map[int64]erp.Produto) []EstoqueRow {
	out := make([]EstoqueRow, 0, len(rows))
	for _, row := range rows {
		produto, ok := listing.Resolve(produtos, row.ProdutoID, listing.JoinDrop, erp.Produto{})
		if !ok {
			continue
		}
		out = append(out, EstoqueRow{Estoque: row, Produto: produto, Status: row.Status()})
	}
	return out
}

// SetLowStock toggles the below-minimum filter.
func (v *EstoqueView) SetLowStock(ctx context.Context, on bool) error {
	value := ""
	if on {
		value = "true"
	}
	return v.SetFilter(ctx, FilterLowStock, value)
}

// Adjust replaces a stock row and refreshes the page.
func (v *EstoqueView) Adjust(ctx context.Context, id int64, e erp.Estoque) error {
	return v.Mutate(ctx, func(ctx context.Context) error {
		_, err := v.api.Estoque.Update(ctx, id, e)
		return err
	})
}
