// Package sandbox is an in-memory implementation of the ERP REST backend
// used for local development and integration tests.
package sandbox

import (
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/platform/httpx"
)

// Store keeps the sandbox data. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	clientes []erp.Cliente
	produtos []erp.Produto
	estoque  []erp.Estoque
	vendas   []erp.Venda
	nextID   map[string]int64
	now      func() time.Time
}

// NewStore returns a store holding seed.
func NewStore(seed Seed) *Store {
	s := &Store{
		clientes: slices.Clone(seed.Clientes),
		produtos: slices.Clone(seed.Produtos),
		estoque:  slices.Clone(seed.Estoque),
		vendas:   slices.Clone(seed.Vendas),
		nextID:   map[string]int64{},
		now:      time.Now,
	}
	s.nextID["clientes"] = maxID(s.clientes, func(c erp.Cliente) int64 { return c.ID })
	s.nextID["produtos"] = maxID(s.produtos, func(p erp.Produto) int64 { return p.ID })
	s.nextID["estoque"] = maxID(s.estoque, func(e erp.Estoque) int64 { return e.ID })
	s.nextID["vendas"] = maxID(s.vendas, func(v erp.Venda) int64 { return v.ID })
	return s
}

func maxID[T any](items []T, id func(T) int64) int64 {
	var m int64
	for _, item := range items {
		m = max(m, id(item))
	}
	return m
}

func (s *Store) allocate(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// fold lowercases and strips diacritics so "joão" matches "JOAO".
func fold(s string) string {
	// Chained transformers keep state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func contains(haystack, needle string) bool {
	return strings.Contains(fold(haystack), fold(needle))
}

// Clientes returns customers matching search on nome, cpf or email.
func (s *Store) Clientes(search string) []erp.Cliente {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]erp.Cliente, 0, len(s.clientes))
	for _, c := range s.clientes {
		if search == "" || contains(c.Nome, search) || contains(c.CPF, search) || contains(c.Email, search) {
			out = append(out, c)
		}
	}
	return out
}

// Cliente finds one customer.
func (s *Store) Cliente(id int64) (erp.Cliente, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.clientes, func(c erp.Cliente) bool { return c.ID == id })
	if i < 0 {
		return erp.Cliente{}, httpx.Errorf(httpx.ErrNotFound, "Cliente %d não encontrado", id)
	}
	return s.clientes[i], nil
}

// SaveCliente inserts (id 0) or replaces a customer. CPF and email are
// unique.
func (s *Store) SaveCliente(c erp.Cliente) (erp.Cliente, error) {
	if err := erp.Validate(c); err != nil {
		return erp.Cliente{}, invalid(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.clientes {
		if other.ID == c.ID {
			continue
		}
		if other.CPF == c.CPF {
			return erp.Cliente{}, httpx.Errorf(httpx.ErrDuplicate, "CPF já cadastrado")
		}
		if strings.EqualFold(other.Email, c.Email) {
			return erp.Cliente{}, httpx.Errorf(httpx.ErrDuplicate, "Email já cadastrado")
		}
	}
	if c.ID == 0 {
		c.ID = s.allocate("clientes")
		if c.CreatedAt == "" {
			c.CreatedAt = s.stamp()
		}
		s.clientes = append(s.clientes, c)
		return c, nil
	}
	i := slices.IndexFunc(s.clientes, func(x erp.Cliente) bool { return x.ID == c.ID })
	if i < 0 {
		return erp.Cliente{}, httpx.Errorf(httpx.ErrNotFound, "Cliente %d não encontrado", c.ID)
	}
	c.CreatedAt = s.clientes[i].CreatedAt
	s.clientes[i] = c
	return c, nil
}

// DeleteCliente removes a customer. Sales keep their clienteId.
func (s *Store) DeleteCliente(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.clientes)
	s.clientes = slices.DeleteFunc(s.clientes, func(c erp.Cliente) bool { return c.ID == id })
	if len(s.clientes) == n {
		return httpx.Errorf(httpx.ErrNotFound, "Cliente %d não encontrado", id)
	}
	return nil
}

// Produtos returns products matching search on nome or codigo, optionally
// restricted to categoria.
func (s *Store) Produtos(search, categoria string) []erp.Produto {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]erp.Produto, 0, len(s.produtos))
	for _, p := range s.produtos {
		if categoria != "" && !strings.EqualFold(p.Categoria, categoria) {
			continue
		}
		if search == "" || contains(p.Nome, search) || contains(p.Codigo, search) {
			out = append(out, p)
		}
	}
	return out
}

// Produto finds one product.
func (s *Store) Produto(id int64) (erp.Produto, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.produtos, func(p erp.Produto) bool { return p.ID == id })
	if i < 0 {
		return erp.Produto{}, httpx.Errorf(httpx.ErrNotFound, "Produto %d não encontrado", id)
	}
	return s.produtos[i], nil
}

// SaveProduto inserts or replaces a product. A new product starts with an
// empty stock row.
func (s *Store) SaveProduto(p erp.Produto) (erp.Produto, error) {
	if err := erp.Validate(p); err != nil {
		return erp.Produto{}, invalid(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.produtos {
		if other.ID != p.ID && strings.EqualFold(other.Codigo, p.Codigo) {
			return erp.Produto{}, httpx.Errorf(httpx.ErrDuplicate, "Código já cadastrado")
		}
	}
	if p.ID == 0 {
		p.ID = s.allocate("produtos")
		if p.CreatedAt == "" {
			p.CreatedAt = s.stamp()
		}
		s.produtos = append(s.produtos, p)
		s.estoque = append(s.estoque, erp.Estoque{ID: s.allocate("estoque"), ProdutoID: p.ID, UltimaAtualizacao: s.stamp()})
		return p, nil
	}
	i := slices.IndexFunc(s.produtos, func(x erp.Produto) bool { return x.ID == p.ID })
	if i < 0 {
		return erp.Produto{}, httpx.Errorf(httpx.ErrNotFound, "Produto %d não encontrado", p.ID)
	}
	p.CreatedAt = s.produtos[i].CreatedAt
	s.produtos[i] = p
	return p, nil
}

// DeleteProduto removes a product. Its stock row and sale lines remain and
// become orphans.
func (s *Store) DeleteProduto(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.produtos)
	s.produtos = slices.DeleteFunc(s.produtos, func(p erp.Produto) bool { return p.ID == id })
	if len(s.produtos) == n {
		return httpx.Errorf(httpx.ErrNotFound, "Produto %d não encontrado", id)
	}
	return nil
}

// Estoque returns stock rows; lowOnly keeps rows under their minimum.
// Search matches the product name or code.
func (s *Store) Estoque(search string, lowOnly bool) []erp.Estoque {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]erp.Estoque, 0, len(s.estoque))
	for _, e := range s.estoque {
		if lowOnly && !e.Low() {
			continue
		}
		if search != "" {
			i := slices.IndexFunc(s.produtos, func(p erp.Produto) bool { return p.ID == e.ProdutoID })
			if i < 0 || !(contains(s.produtos[i].Nome, search) || contains(s.produtos[i].Codigo, search)) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// EstoqueRow finds one stock row.
func (s *Store) EstoqueRow(id int64) (erp.Estoque, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.estoque, func(e erp.Estoque) bool { return e.ID == id })
	if i < 0 {
		return erp.Estoque{}, httpx.Errorf(httpx.ErrNotFound, "Estoque %d não encontrado", id)
	}
	return s.estoque[i], nil
}

// UpdateEstoque replaces a stock row.
func (s *Store) UpdateEstoque(e erp.Estoque) (erp.Estoque, error) {
	if err := erp.Validate(e); err != nil {
		return erp.Estoque{}, invalid(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.estoque, func(x erp.Estoque) bool { return x.ID == e.ID })
	if i < 0 {
		return erp.Estoque{}, httpx.Errorf(httpx.ErrNotFound, "Estoque %d não encontrado", e.ID)
	}
	if e.UltimaAtualizacao == "" {
		e.UltimaAtualizacao = s.stamp()
	}
	s.estoque[i] = e
	return e, nil
}

// VendaFilter narrows the sales list.
type VendaFilter struct {
	NomeCliente string
	ValorMin    *decimal.Decimal
	ValorMax    *decimal.Decimal
}

// Vendas returns sales matching f.
func (s *Store) Vendas(f VendaFilter) []erp.Venda {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nomes := make(map[int64]string, len(s.clientes))
	for _, c := range s.clientes {
		nomes[c.ID] = c.Nome
	}
	out := make([]erp.Venda, 0, len(s.vendas))
	for _, v := range s.vendas {
		if f.NomeCliente != "" && !contains(nomes[v.ClienteID], f.NomeCliente) {
			continue
		}
		if f.ValorMin != nil && v.Total.LessThan(*f.ValorMin) {
			continue
		}
		if f.ValorMax != nil && v.Total.GreaterThan(*f.ValorMax) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Venda finds one sale.
func (s *Store) Venda(id int64) (erp.Venda, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.vendas, func(v erp.Venda) bool { return v.ID == id })
	if i < 0 {
		return erp.Venda{}, httpx.Errorf(httpx.ErrNotFound, "Venda %d não encontrada", id)
	}
	return s.vendas[i], nil
}

// RegisterVenda records a sale and decrements stock atomically. The sale is
// rejected with ErrConflict when any product lacks stock.
func (s *Store) RegisterVenda(v erp.Venda) (erp.Venda, error) {
	if len(v.Itens) == 0 {
		return erp.Venda{}, httpx.Errorf(httpx.ErrValidation, "Venda sem itens")
	}
	if !v.Consistent() {
		return erp.Venda{}, httpx.Errorf(httpx.ErrValidation, "Total %s difere da soma dos itens %s", v.Total, v.ComputedTotal())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.ContainsFunc(s.clientes, func(c erp.Cliente) bool { return c.ID == v.ClienteID }) {
		return erp.Venda{}, httpx.Errorf(httpx.ErrValidation, "Cliente %d inexistente", v.ClienteID)
	}
	want := map[int64]int{}
	for _, item := range v.Itens {
		if item.Quantidade < 1 {
			return erp.Venda{}, httpx.Errorf(httpx.ErrValidation, "Quantidade inválida")
		}
		want[item.ProdutoID] += item.Quantidade
	}
	rows := map[int64]int{}
	for produtoID, qty := range want {
		i := slices.IndexFunc(s.estoque, func(e erp.Estoque) bool { return e.ProdutoID == produtoID })
		if i < 0 || s.estoque[i].Quantidade < qty {
			return erp.Venda{}, httpx.Errorf(httpx.ErrConflict, "Estoque insuficiente para o produto %d", produtoID)
		}
		rows[produtoID] = i
	}
	stamp := s.stamp()
	for produtoID, qty := range want {
		s.estoque[rows[produtoID]].Quantidade -= qty
		s.estoque[rows[produtoID]].UltimaAtualizacao = stamp
	}
	v.ID = s.allocate("vendas")
	if v.Data == "" {
		v.Data = stamp
	}
	s.vendas = append(s.vendas, v)
	return v, nil
}

// DeleteVenda removes a sale without restoring stock.
func (s *Store) DeleteVenda(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.vendas)
	s.vendas = slices.DeleteFunc(s.vendas, func(v erp.Venda) bool { return v.ID == id })
	if len(s.vendas) == n {
		return httpx.Errorf(httpx.ErrNotFound, "Venda %d não encontrada", id)
	}
	return nil
}

// snapshot copies every collection for read-only aggregation.
func (s *Store) snapshot() Seed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Seed{
		Clientes: slices.Clone(s.clientes),
		Produtos: slices.Clone(s.produtos),
		Estoque:  slices.Clone(s.estoque),
		Vendas:   slices.Clone(s.vendas),
	}
}
