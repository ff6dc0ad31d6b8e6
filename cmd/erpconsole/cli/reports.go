package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lojaerp/erp-console/internal/dashboard"
	"github.com/lojaerp/erp-console/internal/erp"
)

func newFinanceiroCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "financeiro",
		Short: "Resumo financeiro",
		Args:  cobra.NoArgs,
		RunE: rt.guard(func(cmd *cobra.Command, _ []string) error {
			data, err := rt.api.Financeiro.Summary(cmd.Context())
			if err != nil {
				return err
			}
			if rt.out.json {
				return rt.out.encode(data)
			}
			renderFinanceiro(rt.out, data)
			return nil
		}),
	}
}

func renderFinanceiro(o *output, d erp.FinanceiroData) {
	o.line("Receita total:      %s", o.money(d.ReceitaTotal))
	o.line("Receita do mês:     %s", o.money(d.ReceitaMensal))
	o.line("Receita de hoje:    %s", o.money(d.ReceitaDiaria))
	o.line("Ticket médio:       %s", o.money(d.TicketMedio))
	o.line("Crescimento mensal: %s%%", o.number(d.CrescimentoMensal))
	o.line("Vendas: %d no total, %d no mês", d.TotalVendas, d.TotalVendasMes)

	if len(d.ReceitaPorMes) > 0 {
		o.line("")
		rows := make([][]string, 0, len(d.ReceitaPorMes))
		for _, m := range d.ReceitaPorMes {
			rows = append(rows, []string{m.Mes, o.money(m.Receita)})
		}
		_ = o.table([]string{"MÊS", "RECEITA"}, rows)
	}
	if len(d.VendasPorCategoria) > 0 {
		o.line("")
		rows := make([][]string, 0, len(d.VendasPorCategoria))
		for _, c := range d.VendasPorCategoria {
			rows = append(rows, []string{c.Categoria, strconv.Itoa(c.QuantidadeVendida), o.money(c.Receita)})
		}
		_ = o.table([]string{"CATEGORIA", "QTD", "RECEITA"}, rows)
	}
	if len(d.TopClientes) > 0 {
		o.line("")
		rows := make([][]string, 0, len(d.TopClientes))
		for _, c := range d.TopClientes {
			rows = append(rows, []string{c.ClienteNome, strconv.Itoa(c.TotalCompras), o.money(c.TotalGasto)})
		}
		_ = o.table([]string{"CLIENTE", "COMPRAS", "GASTO"}, rows)
	}
}

func newForecastCommand(rt *runtime) *cobra.Command {
	var req erp.ForecastRequest
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Treina o modelo e prevê as vendas",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().IntVar(&req.DaysAhead, "days", 30, "horizonte: 7, 14, 30, 60 ou 90 dias")
	cmd.Flags().StringVar(&req.ModelType, "model", "prophet", "modelo: prophet, arima, lstm ou ensemble")
	cmd.RunE = rt.guard(func(cmd *cobra.Command, _ []string) error {
		req.ModelType = strings.ToLower(strings.TrimSpace(req.ModelType))
		res, err := rt.api.Forecast.Auto(cmd.Context(), req)
		if err != nil {
			return err
		}
		if rt.out.json {
			return rt.out.encode(res)
		}
		o := rt.out
		m := res.Training.Metrics
		o.line("Pontos históricos: %d", res.HistoricalDataPoints)
		o.line("MAE %s  RMSE %s  MAPE %s%%  R² %s", o.number(m.MAE), o.number(m.RMSE), o.number(m.MAPE), o.number(m.R2))
		series := res.Forecast.Forecast
		rows := make([][]string, 0, len(series.Dates))
		for i, date := range series.Dates {
			rows = append(rows, []string{date, at(o, series.Predicted, i), at(o, series.LowerBound, i), at(o, series.UpperBound, i)})
		}
		return o.table([]string{"DATA", "PREVISTO", "MÍNIMO", "MÁXIMO"}, rows)
	})
	return cmd
}

func at(o *output, values []float64, i int) string {
	if i >= len(values) {
		return "-"
	}
	return o.number(values[i])
}

func newRelatoriosCommand(rt *runtime) *cobra.Command {
	var path string
	export := &cobra.Command{
		Use:       "export TIPO",
		Short:     "Exporta um relatório CSV (" + strings.Join(erp.ReportKinds, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: erp.ReportKinds,
	}
	export.Flags().StringVarP(&path, "output", "o", "", "arquivo de destino (padrão: relatorio_TIPO.csv)")
	export.RunE = rt.guard(func(cmd *cobra.Command, args []string) error {
		kind := strings.ToLower(args[0])
		data, err := rt.api.Relatorios.Export(cmd.Context(), kind)
		if err != nil {
			return err
		}
		dest := path
		if dest == "" {
			dest = "relatorio_" + kind + ".csv"
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("relatorios export: %w", err)
		}
		return rt.printRecord(map[string]any{"file": dest, "bytes": len(data)}, "Relatório salvo em %s", dest)
	})

	cmd := &cobra.Command{Use: "relatorios", Short: "Relatórios"}
	cmd.AddCommand(export)
	return cmd
}

func newDashboardCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Indicadores do dia",
		Args:  cobra.NoArgs,
		RunE: rt.guard(func(cmd *cobra.Command, _ []string) error {
			stats, err := dashboard.NewService(dashboard.APILoader{API: rt.api}).Stats(cmd.Context())
			if err != nil {
				return err
			}
			if rt.out.json {
				return rt.out.encode(stats)
			}
			o := rt.out
			o.line("%s, %s!", dashboard.Greeting(rt.opts.Now()), rt.session.Username())
			o.line("Clientes: %d  Produtos: %d  Itens em estoque: %d", stats.TotalClientes, stats.TotalProdutos, stats.TotalItensEstoque)
			o.line("Vendas hoje: %d (%s)", stats.QtdVendasHoje, o.money(stats.VendasHoje))
			if len(stats.TopProdutos) > 0 {
				o.line("")
				_ = o.table([]string{"PRODUTO", "RECEITA"}, rankedRows(o, stats.TopProdutos))
			}
			if len(stats.TopClientes) > 0 {
				o.line("")
				_ = o.table([]string{"CLIENTE", "GASTO"}, rankedRows(o, stats.TopClientes))
			}
			if len(stats.Alertas) > 0 {
				o.line("")
				rows := make([][]string, 0, len(stats.Alertas))
				for _, a := range stats.Alertas {
					rows = append(rows, []string{a.Nome, strconv.Itoa(a.Atual), strconv.Itoa(a.Minimo), string(a.Status)})
				}
				_ = o.table([]string{"ALERTA", "ATUAL", "MÍNIMO", "STATUS"}, rows)
			}
			return nil
		}),
	}
}

func rankedRows(o *output, items []dashboard.Ranked) [][]string {
	rows := make([][]string, 0, len(items))
	for _, r := range items {
		rows = append(rows, []string{r.Nome, o.money(r.Valor)})
	}
	return rows
}
