package erp

import (
	"context"
	"fmt"
	"slices"

	"github.com/lojaerp/erp-console/internal/shared"
)

// FinanceiroService binds the financial summary.
type FinanceiroService struct {
	resource
}

// Summary loads the aggregate financial data.
func (s *FinanceiroService) Summary(ctx context.Context) (FinanceiroData, error) {
	var out FinanceiroData
	err := s.backend.GetJSON(ctx, "financeiro.summary", "/financeiro", nil, &out)
	return out, err
}

// ForecastService binds the demand forecast endpoint.
type ForecastService struct {
	resource
}

// Auto trains the chosen model on the sales history and predicts DaysAhead
// days.
func (s *ForecastService) Auto(ctx context.Context, req ForecastRequest) (ForecastResult, error) {
	if err := Validate(req); err != nil {
		return ForecastResult{}, err
	}
	var out ForecastResult
	if err := s.backend.PostJSON(ctx, "forecast.auto", "/forecast/auto", req, &out); err != nil {
		return ForecastResult{}, err
	}
	s.success(ctx, fmt.Sprintf("Previsão gerada para %d dias", req.DaysAhead))
	return out, nil
}

// ReportKinds are the exportable report families.
var ReportKinds = []string{"clientes", "produtos", "estoque", "vendas"}

// RelatorioService binds the CSV report exports.
type RelatorioService struct {
	resource
}

// Export downloads the CSV report for kind.
func (s *RelatorioService) Export(ctx context.Context, kind string) ([]byte, error) {
	if !slices.Contains(ReportKinds, kind) {
		return nil, shared.NewValidationError(map[string]string{"tipo": "Relatório desconhecido: " + kind})
	}
	data, err := s.backend.Download(ctx, "relatorios.export", "/relatorios/"+kind+"/exportar", nil)
	if err != nil {
		return nil, err
	}
	s.success(ctx, "Relatório exportado com sucesso!")
	return data, nil
}
