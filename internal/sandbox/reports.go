package sandbox

import (
	"bytes"
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/platform/httpx"
	"github.com/lojaerp/erp-console/internal/shared"
)

const (
	receitaMeses   = 6
	topClientesMax = 5
)

// Financeiro aggregates revenue figures as of now.
func Financeiro(data Seed, now time.Time) erp.FinanceiroData {
	out := erp.FinanceiroData{
		ReceitaTotal:       decimal.Zero,
		ReceitaMensal:      decimal.Zero,
		ReceitaDiaria:      decimal.Zero,
		TicketMedio:        decimal.Zero,
		ReceitaPorMes:      []erp.ReceitaMes{},
		VendasPorCategoria: []erp.VendasCategoria{},
		TopClientes:        []erp.ClienteFinanceiro{},
	}
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonth := thisMonth.AddDate(0, -1, 0)
	receitaAnterior := decimal.Zero

	porMes := map[string]decimal.Decimal{}
	var meses []string
	for i := receitaMeses - 1; i >= 0; i-- {
		key := thisMonth.AddDate(0, -i, 0).Format("2006-01")
		meses = append(meses, key)
		porMes[key] = decimal.Zero
	}

	produtos := erp.IndexProdutos(data.Produtos)
	categorias := map[string]*erp.VendasCategoria{}
	var ordemCategorias []string
	clientes := map[int64]*erp.ClienteFinanceiro{}
	nomes := map[int64]string{}
	for _, c := range data.Clientes {
		nomes[c.ID] = c.Nome
	}

	y, m, d := now.Date()
	for _, v := range data.Vendas {
		out.ReceitaTotal = out.ReceitaTotal.Add(v.Total)
		out.TotalVendas++
		if t := v.Date(); !t.IsZero() {
			t = t.In(now.Location())
			if !t.Before(thisMonth) {
				out.ReceitaMensal = out.ReceitaMensal.Add(v.Total)
				out.TotalVendasMes++
			} else if !t.Before(lastMonth) {
				receitaAnterior = receitaAnterior.Add(v.Total)
			}
			if vy, vm, vd := t.Date(); vy == y && vm == m && vd == d {
				out.ReceitaDiaria = out.ReceitaDiaria.Add(v.Total)
			}
			if sum, ok := porMes[t.Format("2006-01")]; ok {
				porMes[t.Format("2006-01")] = sum.Add(v.Total)
			}
		}
		for _, item := range v.Itens {
			categoria := "Sem categoria"
			if p, ok := produtos[item.ProdutoID]; ok {
				categoria = p.Categoria
			}
			agg, ok := categorias[categoria]
			if !ok {
				agg = &erp.VendasCategoria{Categoria: categoria, Receita: decimal.Zero}
				categorias[categoria] = agg
				ordemCategorias = append(ordemCategorias, categoria)
			}
			agg.QuantidadeVendida += item.Quantidade
			agg.Receita = agg.Receita.Add(item.Subtotal())
		}
		cf, ok := clientes[v.ClienteID]
		if !ok {
			nome := nomes[v.ClienteID]
			if nome == "" {
				nome = fmt.Sprintf("Cliente %d", v.ClienteID)
			}
			cf = &erp.ClienteFinanceiro{ClienteID: v.ClienteID, ClienteNome: nome, TotalGasto: decimal.Zero}
			clientes[v.ClienteID] = cf
		}
		cf.TotalCompras++
		cf.TotalGasto = cf.TotalGasto.Add(v.Total)
	}

	if out.TotalVendas > 0 {
		out.TicketMedio = out.ReceitaTotal.Div(decimal.NewFromInt(int64(out.TotalVendas))).Round(2)
	}
	if !receitaAnterior.IsZero() {
		growth, _ := out.ReceitaMensal.Sub(receitaAnterior).Div(receitaAnterior).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		out.CrescimentoMensal = growth
	}
	for _, key := range meses {
		out.ReceitaPorMes = append(out.ReceitaPorMes, erp.ReceitaMes{Mes: key, Receita: porMes[key]})
	}
	for _, c := range ordemCategorias {
		out.VendasPorCategoria = append(out.VendasPorCategoria, *categorias[c])
	}
	for _, cf := range clientes {
		out.TopClientes = append(out.TopClientes, *cf)
	}
	slices.SortFunc(out.TopClientes, func(a, b erp.ClienteFinanceiro) int {
		if c := b.TotalGasto.Cmp(a.TotalGasto); c != 0 {
			return c
		}
		return cmp.Compare(a.ClienteID, b.ClienteID)
	})
	if len(out.TopClientes) > topClientesMax {
		out.TopClientes = out.TopClientes[:topClientesMax]
	}
	return out
}

// Forecast predicts daily revenue with a trailing moving average. Every
// model type shares the estimator; the model name only labels the run.
func Forecast(vendas []erp.Venda, req erp.ForecastRequest, now time.Time) (erp.ForecastResult, error) {
	if err := erp.Validate(req); err != nil {
		return erp.ForecastResult{}, invalid(err)
	}
	daily := map[string]float64{}
	var first time.Time
	for _, v := range vendas {
		t := v.Date()
		if t.IsZero() {
			continue
		}
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if first.IsZero() || day.Before(first) {
			first = day
		}
		f, _ := v.Total.Float64()
		daily[day.Format(time.DateOnly)] += f
	}
	if first.IsZero() {
		return erp.ForecastResult{}, httpx.Errorf(httpx.ErrValidation, "Dados insuficientes para previsão")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var series []float64
	for day := first; !day.After(today); day = day.AddDate(0, 0, 1) {
		series = append(series, daily[day.Format(time.DateOnly)])
	}

	window := min(7, len(series))
	var res erp.ForecastResult
	res.HistoricalDataPoints = len(series)
	res.Training.Metrics = fitMetrics(series, window)

	tail := series[len(series)-window:]
	mean, sd := meanStd(tail)
	fc := &res.Forecast.Forecast
	fc.ConfidenceInterval = 0.95
	for i := 1; i <= req.DaysAhead; i++ {
		fc.Dates = append(fc.Dates, today.AddDate(0, 0, i).Format(time.DateOnly))
		fc.Predicted = append(fc.Predicted, round2(mean))
		fc.LowerBound = append(fc.LowerBound, round2(math.Max(0, mean-1.96*sd)))
		fc.UpperBound = append(fc.UpperBound, round2(mean+1.96*sd))
	}
	return res, nil
}

// fitMetrics scores one-step-ahead moving-average predictions in sample.
func fitMetrics(series []float64, window int) erp.ForecastMetrics {
	var absSum, sqSum, pctSum float64
	var n, pctN int
	mean, _ := meanStd(series)
	var ssTot float64
	for i := 1; i < len(series); i++ {
		lo := max(0, i-window)
		pred, _ := meanStd(series[lo:i])
		err := series[i] - pred
		absSum += math.Abs(err)
		sqSum += err * err
		ssTot += (series[i] - mean) * (series[i] - mean)
		if series[i] != 0 {
			pctSum += math.Abs(err / series[i])
			pctN++
		}
		n++
	}
	if n == 0 {
		return erp.ForecastMetrics{}
	}
	m := erp.ForecastMetrics{
		MAE:  round2(absSum / float64(n)),
		RMSE: round2(math.Sqrt(sqSum / float64(n))),
	}
	if pctN > 0 {
		m.MAPE = round2(100 * pctSum / float64(pctN))
	}
	if ssTot > 0 {
		m.R2 = round2(1 - sqSum/ssTot)
	}
	return m
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// ExportCSV renders one report family as CSV with a header row.
func ExportCSV(data Seed, kind string) ([]byte, error) {
	var rows [][]string
	switch kind {
	case "clientes":
		rows = append(rows, []string{"id", "nome", "cpf", "endereco", "telefone", "email", "createdAt"})
		for _, c := range data.Clientes {
			rows = append(rows, []string{id(c.ID), c.Nome, c.CPF, c.Endereco, c.Telefone, c.Email, c.CreatedAt})
		}
	case "produtos":
		rows = append(rows, []string{"id", "nome", "codigo", "preco", "categoria", "descricao"})
		for _, p := range data.Produtos {
			rows = append(rows, []string{id(p.ID), p.Nome, p.Codigo, p.Preco.StringFixed(2), p.Categoria, p.Descricao})
		}
	case "estoque":
		rows = append(rows, []string{"id", "produtoId", "quantidade", "quantidadeMinima", "status", "ultimaAtualizacao"})
		for _, e := range data.Estoque {
			rows = append(rows, []string{id(e.ID), id(e.ProdutoID), strconv.Itoa(e.Quantidade), strconv.Itoa(e.QuantidadeMinima), string(e.Status()), e.UltimaAtualizacao})
		}
	case "vendas":
		rows = append(rows, []string{"id", "clienteId", "data", "itens", "total"})
		for _, v := range data.Vendas {
			rows = append(rows, []string{id(v.ID), id(v.ClienteID), v.Data, strconv.Itoa(len(v.Itens)), v.Total.StringFixed(2)})
		}
	default:
		return nil, httpx.Errorf(httpx.ErrNotFound, "Relatório desconhecido: %s", kind)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

// ImportResult mirrors erp.ImportResult on the server side.
type ImportResult = erp.ImportResult

// ImportClientes reads a customer CSV from a path on this host. Rows that
// fail validation or uniqueness are reported and skipped.
func ImportClientes(store *Store, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ImportResult{}, httpx.Errorf(httpx.ErrNotFound, "Arquivo não encontrado: %s", path)
		}
		return ImportResult{}, httpx.Errorf(httpx.ErrValidation, "Não foi possível abrir o arquivo: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return ImportResult{}, httpx.Errorf(httpx.ErrValidation, "Arquivo CSV vazio ou inválido")
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"nome", "cpf", "endereco", "telefone", "email"} {
		if _, ok := cols[required]; !ok {
			return ImportResult{}, httpx.Errorf(httpx.ErrValidation, "Coluna obrigatória ausente: %s", required)
		}
	}
	field := func(rec []string, name string) string {
		if i := cols[name]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	res := ImportResult{Erros: []string{}}
	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			res.Erros = append(res.Erros, fmt.Sprintf("linha %d: %v", line, err))
			continue
		}
		c := erp.Cliente{
			Nome:     field(rec, "nome"),
			CPF:      field(rec, "cpf"),
			Endereco: field(rec, "endereco"),
			Telefone: field(rec, "telefone"),
			Email:    field(rec, "email"),
		}
		if _, err := store.SaveCliente(c); err != nil {
			res.Erros = append(res.Erros, fmt.Sprintf("linha %d: %s", line, err.Error()))
			continue
		}
		res.Importados++
	}
	res.Message = fmt.Sprintf("%d clientes importados com sucesso!", res.Importados)
	return res, nil
}

// invalid converts a form validation failure to an ErrValidation response
// listing the field messages.
func invalid(err error) error {
	var verr *shared.ValidationError
	if !errors.As(err, &verr) {
		return httpx.Errorf(httpx.ErrValidation, "%v", err)
	}
	msgs := make([]string, 0, len(verr.Fields))
	for _, msg := range verr.Fields {
		msgs = append(msgs, msg)
	}
	slices.Sort(msgs)
	return httpx.Errorf(httpx.ErrValidation, "%s", strings.Join(msgs, "; "))
}
