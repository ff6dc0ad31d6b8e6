package erp

import (
	"context"

	"github.com/lojaerp/erp-console/internal/shared"
)

const produtosPath = "/produtos"

// ProdutoService binds /produtos.
type ProdutoService struct {
	resource
}

// List returns one page of products. The "categoria" filter narrows by
// category.
func (s *ProdutoService) List(ctx context.Context, params ListParams) (shared.Page[Produto], error) {
	return listPage[Produto](ctx, s.backend, "produtos.list", produtosPath, "search", params)
}

// All loads the whole catalogue.
func (s *ProdutoService) All(ctx context.Context) ([]Produto, error) {
	return fetchAll[Produto](ctx, s.backend, "produtos.all", produtosPath)
}

// Get loads one product.
func (s *ProdutoService) Get(ctx context.Context, id int64) (Produto, error) {
	var p Produto
	err := s.backend.GetJSON(ctx, "produtos.get", itemPath(produtosPath, id), nil, &p)
	return p, err
}

// Create validates and registers a product.
func (s *ProdutoService) Create(ctx context.Context, p Produto) (Produto, error) {
	if err := Validate(p); err != nil {
		return Produto{}, err
	}
	p.ID = 0
	p.CreatedAt = s.timestamp()
	var out Produto
	if err := s.backend.PostJSON(ctx, "produtos.create", produtosPath, p, &out); err != nil {
		return Produto{}, err
	}
	s.success(ctx, "Produto cadastrado com sucesso!")
	return out, nil
}

// Update replaces the product record.
func (s *ProdutoService) Update(ctx context.Context, id int64, p Produto) (Produto, error) {
	if err := Validate(p); err != nil {
		return Produto{}, err
	}
	p.ID = id
	var out Produto
	if err := s.backend.PutJSON(ctx, "produtos.update", itemPath(produtosPath, id), p, &out); err != nil {
		return Produto{}, err
	}
	s.success(ctx, "Produto atualizado com sucesso!")
	return out, nil
}

// Delete removes a product.
func (s *ProdutoService) Delete(ctx context.Context, id int64) error {
	if err := s.backend.Delete(ctx, "produtos.delete", itemPath(produtosPath, id)); err != nil {
		return err
	}
	s.success(ctx, "Produto excluído com sucesso!")
	return nil
}

// Categories returns the distinct categories of products, in first-seen
// order.
func Categories(produtos []Produto) []string {
	seen := make(map[string]struct{}, len(produtos))
	out := make([]string, 0)
	for _, p := range produtos {
		if p.Categoria == "" {
			continue
		}
		if _, ok := seen[p.Categoria]; ok {
			continue
		}
		seen[p.Categoria] = struct{}{}
		out = append(out, p.Categoria)
	}
	return out
}

// IndexProdutos maps products by id.
func IndexProdutos(produtos []Produto) map[int64]Produto {
	out := make(map[int64]Produto, len(produtos))
	for _, p := range produtos {
		out[p.ID] = p
	}
	return out
}
