// Package dashboard derives the home screen figures from the full
// collections.
package dashboard

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/lojaerp/erp-console/internal/erp"
)

const (
	topProdutosLimit = 9
	topClientesLimit = 10
)

// Loader fetches the collections the dashboard is computed from.
type Loader interface {
	Clientes(ctx context.Context) ([]erp.Cliente, error)
	Produtos(ctx context.Context) ([]erp.Produto, error)
	Estoque(ctx context.Context) ([]erp.Estoque, error)
	Vendas(ctx context.Context) ([]erp.Venda, error)
}

// Ranked is a product or customer with its aggregate.
type Ranked struct {
	ID    int64
	Nome  string
	Valor decimal.Decimal
}

// StockLine is one bar of the stock status chart.
type StockLine struct {
	Nome      string
	Atual     int
	Minimo    int
	Status    erp.StockStatus
	ProdutoID int64
}

// Distribution summarises sale totals.
type Distribution struct {
	Count  int
	Media  float64
	Desvio float64
	Min    float64
	Max    float64
	Q1     float64
	Median float64
	Q3     float64
}

// Stats is the dashboard content.
type Stats struct {
	TotalClientes     int
	TotalProdutos     int
	TotalItensEstoque int
	VendasHoje        decimal.Decimal
	QtdVendasHoje     int
	TopProdutos       []Ranked
	TopClientes       []Ranked
	Estoque           []StockLine
	Alertas           []StockLine
	Vendas            Distribution
}

// Service computes Stats from a Loader.
type Service struct {
	loader Loader
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(loader Loader) *Service {
	return &Service{loader: loader, now: time.Now}
}

// Stats loads all four collections concurrently and derives the figures.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var (
		clientes []erp.Cliente
		produtos []erp.Produto
		estoque  []erp.Estoque
		vendas   []erp.Venda
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { clientes, err = s.loader.Clientes(gctx); return })
	g.Go(func() (err error) { produtos, err = s.loader.Produtos(gctx); return })
	g.Go(func() (err error) { estoque, err = s.loader.Estoque(gctx); return })
	g.Go(func() (err error) { vendas, err = s.loader.Vendas(gctx); return })
	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("dashboard: %w", err)
	}
	return Compute(clientes, produtos, estoque, vendas, s.now()), nil
}

// Compute derives the dashboard from loaded collections. Sales count as
// "today" when their date falls on now's calendar day in now's location.
func Compute(clientes []erp.Cliente, produtos []erp.Produto, estoque []erp.Estoque, vendas []erp.Venda, now time.Time) Stats {
	st := Stats{
		TotalClientes: len(clientes),
		TotalProdutos: len(produtos),
		VendasHoje:    decimal.Zero,
	}
	produtoIdx := erp.IndexProdutos(produtos)

	for _, e := range estoque {
		st.TotalItensEstoque += e.Quantidade
		nome := fmt.Sprintf("Produto %d", e.ProdutoID)
		if p, ok := produtoIdx[e.ProdutoID]; ok {
			nome = p.Nome
		}
		line := StockLine{Nome: nome, Atual: e.Quantidade, Minimo: e.QuantidadeMinima, Status: e.Status(), ProdutoID: e.ProdutoID}
		st.Estoque = append(st.Estoque, line)
		if line.Status != erp.EmEstoque {
			st.Alertas = append(st.Alertas, line)
		}
	}

	y, m, d := now.Date()
	for _, v := range vendas {
		if t := v.Date(); !t.IsZero() {
			vy, vm, vd := t.In(now.Location()).Date()
			if vy == y && vm == m && vd == d {
				st.VendasHoje = st.VendasHoje.Add(v.Total)
				st.QtdVendasHoje++
			}
		}
	}

	st.TopProdutos = topProdutos(vendas, produtoIdx)
	st.TopClientes = topClientes(vendas, clientes)
	st.Vendas = distribution(vendas)
	return st
}

func topProdutos(vendas []erp.Venda, produtos map[int64]erp.Produto) []Ranked {
	totals := map[int64]*Ranked{}
	var order []*Ranked
	for _, v := range vendas {
		for _, item := range v.Itens {
			p, ok := produtos[item.ProdutoID]
			if !ok {
				continue
			}
			r, seen := totals[p.ID]
			if !seen {
				r = &Ranked{ID: p.ID, Nome: p.Nome, Valor: decimal.Zero}
				totals[p.ID] = r
				order = append(order, r)
			}
			r.Valor = r.Valor.Add(decimal.NewFromInt(int64(item.Quantidade)))
		}
	}
	return rank(order, topProdutosLimit)
}

func topClientes(vendas []erp.Venda, clientes []erp.Cliente) []Ranked {
	idx := make(map[int64]erp.Cliente, len(clientes))
	for _, c := range clientes {
		idx[c.ID] = c
	}
	totals := map[int64]*Ranked{}
	var order []*Ranked
	for _, v := range vendas {
		c, ok := idx[v.ClienteID]
		if !ok {
			continue
		}
		r, seen := totals[c.ID]
		if !seen {
			r = &Ranked{ID: c.ID, Nome: c.Nome, Valor: decimal.Zero}
			totals[c.ID] = r
			order = append(order, r)
		}
		r.Valor = r.Valor.Add(v.Total)
	}
	return rank(order, topClientesLimit)
}

func rank(items []*Ranked, limit int) []Ranked {
	out := make([]Ranked, 0, len(items))
	for _, r := range items {
		out = append(out, *r)
	}
	slices.SortStableFunc(out, func(a, b Ranked) int { return b.Valor.Cmp(a.Valor) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func distribution(vendas []erp.Venda) Distribution {
	values := make([]float64, 0, len(vendas))
	for _, v := range vendas {
		f, _ := v.Total.Float64()
		values = append(values, f)
	}
	dist := Distribution{Count: len(values)}
	if len(values) == 0 {
		return dist
	}
	slices.SortFunc(values, cmp.Compare[float64])
	var sum float64
	for _, v := range values {
		sum += v
	}
	dist.Media = sum / float64(len(values))
	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			sq += (v - dist.Media) * (v - dist.Media)
		}
		dist.Desvio = math.Sqrt(sq / float64(len(values)-1))
	}
	dist.Min = values[0]
	dist.Max = values[len(values)-1]
	dist.Q1 = quantile(values, 0.25)
	dist.Median = quantile(values, 0.5)
	dist.Q3 = quantile(values, 0.75)
	return dist
}

// quantile interpolates linearly between closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Greeting picks the salutation for the hour of now.
func Greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Bom dia"
	case h < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

// APILoader adapts *erp.API to Loader.
type APILoader struct {
	API *erp.API
}

func (l APILoader) Clientes(ctx context.Context) ([]erp.Cliente, error) { return l.API.Clientes.All(ctx) }
func (l APILoader) Produtos(ctx context.Context) ([]erp.Produto, error) { return l.API.Produtos.All(ctx) }
func (l APILoader) Estoque(ctx context.Context) ([]erp.Estoque, error) { return l.API.Estoque.All(ctx) }
func (l APILoader) Vendas(ctx context.Context) ([]erp.Venda, error) { return l.API.Vendas.All(ctx) }
