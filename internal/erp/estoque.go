package erp

import (
	"context"

	"github.com/lojaerp/erp-console/internal/shared"
)

const estoquePath = "/estoque"

// EstoqueService binds /estoque.
type EstoqueService struct {
	resource
}

// List returns one page of stock rows. The "lowStock" filter set to "true"
// keeps only rows under their minimum.
func (s *EstoqueService) List(ctx context.Context, params ListParams) (shared.Page[Estoque], error) {
	return listPage[Estoque](ctx, s.backend, "estoque.list", estoquePath, "search", params)
}

// All loads every stock row.
func (s *EstoqueService) All(ctx context.Context) ([]Estoque, error) {
	return fetchAll[Estoque](ctx, s.backend, "estoque.all", estoquePath)
}

// Get loads one stock row.
func (s *EstoqueService) Get(ctx context.Context, id int64) (Estoque, error) {
	var e Estoque
	err := s.backend.GetJSON(ctx, "estoque.get", itemPath(estoquePath, id), nil, &e)
	return e, err
}

// Update replaces a stock row and stamps ultimaAtualizacao.
func (s *EstoqueService) Update(ctx context.Context, id int64, e Estoque) (Estoque, error) {
	if err := Validate(e); err != nil {
		return Estoque{}, err
	}
	e.ID = id
	e.UltimaAtualizacao = s.timestamp()
	var out Estoque
	if err := s.backend.PutJSON(ctx, "estoque.update", itemPath(estoquePath, id), e, &out); err != nil {
		return Estoque{}, err
	}
	s.success(ctx, "Estoque atualizado com sucesso!")
	return out, nil
}

// IndexEstoque maps stock rows by product id.
func IndexEstoque(rows []Estoque) map[int64]Estoque {
	out := make(map[int64]Estoque, len(rows))
	for _, e := range rows {
		out[e.ProdutoID] = e
	}
	return out
}
