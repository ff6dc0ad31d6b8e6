package erp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lojaerp/erp-console/internal/shared"
)

const vendasPath = "/vendas"

// VendaService binds /vendas.
type VendaService struct {
	resource
}

// List returns one page of sales. The search term filters by customer name;
// "valorMin" and "valorMax" filters bound the total.
func (s *VendaService) List(ctx context.Context, params ListParams) (shared.Page[Venda], error) {
	return listPage[Venda](ctx, s.backend, "vendas.list", vendasPath, "nomeCliente", params)
}

// All loads every sale.
func (s *VendaService) All(ctx context.Context) ([]Venda, error) {
	return fetchAll[Venda](ctx, s.backend, "vendas.all", vendasPath)
}

// Get loads one sale.
func (s *VendaService) Get(ctx context.Context, id int64) (Venda, error) {
	var v Venda
	err := s.backend.GetJSON(ctx, "vendas.get", itemPath(vendasPath, id), nil, &v)
	return v, err
}

// Delete removes a sale.
func (s *VendaService) Delete(ctx context.Context, id int64) error {
	if err := s.backend.Delete(ctx, "vendas.delete", itemPath(vendasPath, id)); err != nil {
		return err
	}
	s.success(ctx, "Venda excluída com sucesso!")
	return nil
}

// Price turns a draft into a sale priced from the catalogue. Quantities of
// repeated products are summed before they are checked against stock; a
// product with no stock row has none available.
func Price(draft VendaDraft, catalogue map[int64]Produto, stock map[int64]Estoque) (Venda, error) {
	if err := Validate(draft); err != nil {
		return Venda{}, err
	}
	requested := make(map[int64]int, len(draft.Itens))
	venda := Venda{ClienteID: draft.ClienteID, Itens: make([]ItemVenda, 0, len(draft.Itens))}
	for i, item := range draft.Itens {
		produto, ok := catalogue[item.ProdutoID]
		if !ok {
			return Venda{}, shared.NewValidationError(map[string]string{
				fmt.Sprintf("itens[%d].produtoId", i): "Produto não encontrado",
			})
		}
		requested[item.ProdutoID] += item.Quantidade
		venda.Itens = append(venda.Itens, ItemVenda{
			ProdutoID:     item.ProdutoID,
			Quantidade:    item.Quantidade,
			PrecoUnitario: produto.Preco,
		})
	}
	for _, item := range draft.Itens {
		want, seen := requested[item.ProdutoID]
		if !seen {
			continue
		}
		delete(requested, item.ProdutoID)
		available := stock[item.ProdutoID].Quantidade
		if want > available {
			return Venda{}, &shared.StockError{ProdutoID: item.ProdutoID, Requested: want, Available: available}
		}
	}
	venda.Total = venda.ComputedTotal()
	return venda, nil
}

// Register prices the draft, checks it against the last known stock and
// submits it. A 409 from the backend means the stock moved underneath us.
func (s *VendaService) Register(ctx context.Context, draft VendaDraft, catalogue map[int64]Produto, stock map[int64]Estoque) (Venda, error) {
	venda, err := Price(draft, catalogue, stock)
	if err != nil {
		return Venda{}, err
	}
	venda.Data = s.timestamp()
	var out Venda
	if err := s.backend.PostJSON(ctx, "vendas.create", vendasPath, venda, &out); err != nil {
		var apiErr *shared.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return Venda{}, &shared.APIError{Kind: shared.ErrInsufficientStock, Op: apiErr.Op, Status: apiErr.Status, Message: apiErr.Message}
		}
		return Venda{}, err
	}
	s.success(ctx, "Venda registrada com sucesso! Estoque atualizado automaticamente.")
	return out, nil
}
