// Package erp binds the retail ERP REST resources: customers, products,
// stock, sales, the financial summary, forecasts and report exports.
package erp

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The backend exchanges money as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Cliente is a customer record.
type Cliente struct {
	ID        int64  `json:"id"`
	Nome      string `json:"nome" validate:"required"`
	CPF       string `json:"cpf" validate:"required,cpf"`
	Endereco  string `json:"endereco" validate:"required"`
	Telefone  string `json:"telefone" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Produto is a catalogue product.
type Produto struct {
	ID        int64           `json:"id"`
	Nome      string          `json:"nome" validate:"required"`
	Codigo    string          `json:"codigo" validate:"required"`
	Preco     decimal.Decimal `json:"preco" validate:"gt=0"`
	Categoria string          `json:"categoria" validate:"required"`
	Descricao string          `json:"descricao" validate:"required"`
	CreatedAt string          `json:"createdAt,omitempty"`
}

// StockStatus is the alert state shown next to a stock row.
type StockStatus string

const (
	SemEstoque   StockStatus = "Sem estoque"
	EstoqueBaixo StockStatus = "Estoque baixo"
	EmEstoque    StockStatus = "Em estoque"
)

// Estoque is the stock level of one product.
type Estoque struct {
	ID                int64  `json:"id"`
	ProdutoID         int64  `json:"produtoId" validate:"gt=0"`
	Quantidade        int    `json:"quantidade" validate:"gte=0"`
	QuantidadeMinima  int    `json:"quantidadeMinima" validate:"gte=0"`
	UltimaAtualizacao string `json:"ultimaAtualizacao,omitempty"`
}

// Low reports whether the quantity is under the minimum.
func (e Estoque) Low() bool {
	return e.Quantidade < e.QuantidadeMinima
}

// Status derives the alert state.
func (e Estoque) Status() StockStatus {
	switch {
	case e.Quantidade == 0:
		return SemEstoque
	case e.Low():
		return EstoqueBaixo
	default:
		return EmEstoque
	}
}

// ItemVenda is one line of a sale.
type ItemVenda struct {
	ProdutoID     int64           `json:"produtoId"`
	Quantidade    int             `json:"quantidade"`
	PrecoUnitario decimal.Decimal `json:"precoUnitario"`
}

// Subtotal is quantidade × precoUnitario.
func (i ItemVenda) Subtotal() decimal.Decimal {
	return i.PrecoUnitario.Mul(decimal.NewFromInt(int64(i.Quantidade)))
}

// Venda is a registered sale.
type Venda struct {
	ID        int64           `json:"id"`
	ClienteID int64           `json:"clienteId"`
	Itens     []ItemVenda     `json:"itens"`
	Total     decimal.Decimal `json:"total"`
	Data      string          `json:"data,omitempty"`
}

// ComputedTotal sums the line subtotals.
func (v Venda) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range v.Itens {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Consistent reports whether Total matches the line items.
func (v Venda) Consistent() bool {
	return v.Total.Equal(v.ComputedTotal())
}

// Date parses Data; the zero time is returned when it is absent or malformed.
func (v Venda) Date() time.Time {
	return parseTimestamp(v.Data)
}

// VendaDraft is the sale form before pricing.
type VendaDraft struct {
	ClienteID int64            `json:"clienteId" validate:"gt=0"`
	Itens     []VendaDraftItem `json:"itens" validate:"min=1,dive"`
}

// VendaDraftItem is one requested line.
type VendaDraftItem struct {
	ProdutoID  int64 `json:"produtoId" validate:"gt=0"`
	Quantidade int   `json:"quantidade" validate:"min=1"`
}

// FinanceiroData is the aggregate financial summary.
type FinanceiroData struct {
	ReceitaTotal       decimal.Decimal     `json:"receitaTotal"`
	ReceitaMensal      decimal.Decimal     `json:"receitaMensal"`
	ReceitaDiaria      decimal.Decimal     `json:"receitaDiaria"`
	TicketMedio        decimal.Decimal     `json:"ticketMedio"`
	CrescimentoMensal  float64             `json:"crescimentoMensal"`
	TotalVendas        int                 `json:"totalVendas"`
	TotalVendasMes     int                 `json:"totalVendasMes"`
	ReceitaPorMes      []ReceitaMes        `json:"receitaPorMes"`
	VendasPorCategoria []VendasCategoria   `json:"vendasPorCategoria"`
	TopClientes        []ClienteFinanceiro `json:"topClientes"`
}

// ReceitaMes is revenue for one month.
type ReceitaMes struct {
	Mes     string          `json:"mes"`
	Receita decimal.Decimal `json:"receita"`
}

// VendasCategoria aggregates sales per product category.
type VendasCategoria struct {
	Categoria         string          `json:"categoria"`
	QuantidadeVendida int             `json:"quantidadeVendida"`
	Receita           decimal.Decimal `json:"receita"`
}

// ClienteFinanceiro ranks a customer by spend.
type ClienteFinanceiro struct {
	ClienteID    int64           `json:"clienteId"`
	ClienteNome  string          `json:"clienteNome"`
	TotalCompras int             `json:"totalCompras"`
	TotalGasto   decimal.Decimal `json:"totalGasto"`
}

// ForecastRequest selects the horizon and model for an automatic forecast.
type ForecastRequest struct {
	DaysAhead int    `json:"daysAhead" validate:"oneof=7 14 30 60 90"`
	ModelType string `json:"modelType" validate:"oneof=prophet arima lstm ensemble"`
}

// ForecastResult is the backend's train-and-predict response.
type ForecastResult struct {
	Training struct {
		Metrics ForecastMetrics `json:"metrics"`
	} `json:"training"`
	HistoricalDataPoints int `json:"historical_data_points"`
	Forecast             struct {
		Forecast ForecastSeries `json:"forecast"`
	} `json:"forecast"`
}

// ForecastMetrics are the model's fit statistics.
type ForecastMetrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
	R2   float64 `json:"r2"`
}

// ForecastSeries holds the predicted values with their interval.
type ForecastSeries struct {
	Dates              []string  `json:"dates"`
	Predicted          []float64 `json:"predicted"`
	LowerBound         []float64 `json:"lower_bound"`
	UpperBound         []float64 `json:"upper_bound"`
	ConfidenceInterval float64   `json:"confidence_interval"`
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
