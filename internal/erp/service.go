package erp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lojaerp/erp-console/internal/shared"
)

// allPageSize is the page size used when a whole collection is loaded.
const allPageSize = 200

// Backend is the transport the services run on; *apiclient.Client
// implements it.
type Backend interface {
	GetJSON(ctx context.Context, op, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, op, path string, body, out any) error
	PutJSON(ctx context.Context, op, path string, body, out any) error
	Delete(ctx context.Context, op, path string) error
	Download(ctx context.Context, op, path string, query url.Values) ([]byte, error)
}

// ListParams selects one page of a list endpoint.
type ListParams struct {
	Page    int
	Size    int
	Search  string
	Filters map[string]string
}

// Values encodes the params; empty search and filters are omitted.
func (p ListParams) Values(searchParam string) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	if p.Size > 0 {
		q.Set("size", strconv.Itoa(p.Size))
	}
	if p.Search != "" {
		q.Set(searchParam, p.Search)
	}
	for k, v := range p.Filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// API groups the resource services over one backend.
type API struct {
	Clientes   *ClienteService
	Produtos   *ProdutoService
	Estoque    *EstoqueService
	Vendas     *VendaService
	Financeiro *FinanceiroService
	Forecast   *ForecastService
	Relatorios *RelatorioService
}

// NewAPI wires every service.
func NewAPI(backend Backend, notifier shared.Notifier) *API {
	if notifier == nil {
		notifier = shared.Discard
	}
	base := resource{backend: backend, notifier: notifier, now: time.Now}
	return &API{
		Clientes:   &ClienteService{resource: base},
		Produtos:   &ProdutoService{resource: base},
		Estoque:    &EstoqueService{resource: base},
		Vendas:     &VendaService{resource: base},
		Financeiro: &FinanceiroService{resource: base},
		Forecast:   &ForecastService{resource: base},
		Relatorios: &RelatorioService{resource: base},
	}
}

type resource struct {
	backend  Backend
	notifier shared.Notifier
	now      func() time.Time
}

func (r resource) success(ctx context.Context, msg string) {
	r.notifier.Notify(ctx, shared.Notice{Kind: shared.NoticeSuccess, Message: msg})
}

func (r resource) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

func listPage[T any](ctx context.Context, b Backend, op, path, searchParam string, params ListParams) (shared.Page[T], error) {
	var page shared.Page[T]
	if err := b.GetJSON(ctx, op, path, params.Values(searchParam), &page); err != nil {
		return shared.Page[T]{}, err
	}
	return page, nil
}

// fetchAll walks every page of path. Non-paginating backends answer with a
// bare array, which ends the walk after one request.
func fetchAll[T any](ctx context.Context, b Backend, op, path string) ([]T, error) {
	var all []T
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("size", strconv.Itoa(allPageSize))
		var p shared.Page[T]
		if err := b.GetJSON(ctx, op, path, q, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Content...)
		if page+1 >= p.TotalPages || len(p.Content) == 0 {
			break
		}
	}
	if all == nil {
		all = []T{}
	}
	return all, nil
}

func itemPath(base string, id int64) string {
	return fmt.Sprintf("%s/%d", base, id)
}
