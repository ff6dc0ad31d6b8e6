package views

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/listing"
	"github.com/lojaerp/erp-console/internal/shared"
)

// VendaLine is a sale item with its product label.
type VendaLine struct {
	erp.ItemVenda
	ProdutoNome string          `json:"produtoNome"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// VendaRow is a sale joined to its customer and products.
type VendaRow struct {
	erp.Venda
	ClienteNome string      `json:"clienteNome"`
	Linhas      []VendaLine `json:"linhas"`
}

// VendasView lists sales. Missing customers and products are shown with a
// placeholder label instead of dropping the sale.
type VendasView struct {
	*listing.Controller[erp.Venda, VendaRow]
	api      *erp.API
	catalogs *Catalogs
}

// NewVendasView wires the sales list. Its search term filters by customer
// name.
func NewVendasView(deps Deps, catalogs *Catalogs, onChange func(listing.Snapshot[VendaRow])) (*VendasView, error) {
	if catalogs == nil {
		catalogs = NewCatalogs(deps.API)
	}
	fetch := func(ctx context.Context, q listing.Query) (shared.Page[erp.Venda], error) {
		return deps.API.Vendas.List(ctx, params(q))
	}
	join := func(ctx context.Context, rows []erp.Venda) ([]VendaRow, error) {
		clientes, err := catalogs.Clientes.Index(ctx)
		if err != nil {
			return nil, err
		}
		produtos, err := catalogs.Produtos.Index(ctx)
		if err != nil {
			return nil, err
		}
		return JoinVendas(rows, clientes, produtos), nil
	}
	ctrl, err := listing.New(options(deps, "vendas", fetch, join, onChange))
	if err != nil {
		return nil, err
	}
	return &VendasView{Controller: ctrl, api: deps.API, catalogs: catalogs}, nil
}

// JoinVendas labels each sale with its customer and line products.
func JoinVendas(rows []erp.Venda, clientes map[int64]erp.Cliente, produtos map[int64]erp.Produto) []VendaRow {
	out := make([]VendaRow, 0, len(rows))
	for _, venda := range rows {
		cliente, _ := listing.Resolve(clientes, venda.ClienteID, listing.JoinPlaceholder, erp.Cliente{Nome: ClienteNotFound})
		out = append(out, VendaRow{
			Venda:       venda,
			ClienteNome: cliente.Nome,
			Linhas:      VendaDetails(venda, produtos),
		})
	}
	return out
}

// VendaDetails builds the detail lines of one sale.
func VendaDetails(venda erp.Venda, produtos map[int64]erp.Produto) []VendaLine {
	lines := make([]VendaLine, 0, len(venda.Itens))
	for _, item := range venda.Itens {
		produto, _ := listing.Resolve(produtos, item.ProdutoID, listing.JoinPlaceholder, erp.Produto{Nome: ProdutoNotFound})
		lines = append(lines, VendaLine{ItemVenda: item, ProdutoNome: produto.Nome, Subtotal: item.Subtotal()})
	}
	return lines
}

// SetValorRange bounds the sale total; empty strings clear a bound.
func (v *VendasView) SetValorRange(ctx context.Context, lo, hi string) error {
	filters, err := ValorFilters(lo, hi)
	if err != nil {
		return err
	}
	return v.SetFilters(ctx, filters)
}

// ValorFilters validates a sale total range and returns it as list filters.
func ValorFilters(lo, hi string) (map[string]string, error) {
	if err := validAmount(FilterValorMin, lo); err != nil {
		return nil, err
	}
	if err := validAmount(FilterValorMax, hi); err != nil {
		return nil, err
	}
	return map[string]string{FilterValorMin: lo, FilterValorMax: hi}, nil
}

func validAmount(field, raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := decimal.NewFromString(raw); err != nil {
		return shared.NewValidationError(map[string]string{field: "Valor inválido"})
	}
	return nil
}

// Register submits a sale checked against fresh stock levels, then
// refreshes the page.
func (v *VendasView) Register(ctx context.Context, draft erp.VendaDraft) (erp.Venda, error) {
	var out erp.Venda
	err := v.Mutate(ctx, func(ctx context.Context) error {
		produtos, err := v.catalogs.Produtos.Index(ctx)
		if err != nil {
			return err
		}
		stock, err := v.api.Estoque.All(ctx)
		if err != nil {
			return err
		}
		out, err = v.api.Vendas.Register(ctx, draft, produtos, erp.IndexEstoque(stock))
		return err
	})
	return out, err
}

// Delete removes a sale and refreshes the page.
func (v *VendasView) Delete(ctx context.Context, id int64) error {
	return v.Mutate(ctx, func(ctx context.Context) error {
		return v.api.Vendas.Delete(ctx, id)
	})
}

// Details loads one sale with labelled lines.
func (v *VendasView) Details(ctx context.Context, id int64) (VendaRow, error) {
	venda, err := v.api.Vendas.Get(ctx, id)
	if err != nil {
		return VendaRow{}, err
	}
	clientes, err := v.catalogs.Clientes.Index(ctx)
	if err != nil {
		return VendaRow{}, err
	}
	produtos, err := v.catalogs.Produtos.Index(ctx)
	if err != nil {
		return VendaRow{}, err
	}
	return JoinVendas([]erp.Venda{venda}, clientes, produtos)[0], nil
}
