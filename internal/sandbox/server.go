package sandbox

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/shopspring/decimal"

	"github.com/lojaerp/erp-console/internal/app"
	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/observability"
	"github.com/lojaerp/erp-console/internal/platform/httpx"
)

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// Users maps usernames to plain passwords.
	Users map[string]string
	// Seed replaces the bundled data set when non-nil.
	Seed    *Seed
	Metrics *observability.Metrics
	// LoginRate caps login attempts per IP and minute; zero means 20.
	LoginRate      int
	RequestTimeout time.Duration
	Production     bool
	Now            func() time.Time
}

// Server is the sandbox backend.
type Server struct {
	logger  *slog.Logger
	store   *Store
	auth    *Auth
	metrics *observability.Metrics
	now     func() time.Time
	handler http.Handler
}

// New builds a Server with its routes mounted.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seed := DefaultSeed()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	auth, err := NewAuth(opts.Users)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	store := NewStore(seed)
	store.now = now
	s := &Server{logger: logger, store: store, auth: auth, metrics: opts.Metrics, now: now}
	s.handler = s.routes(opts)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Store exposes the data set.
func (s *Server) Store() *Store { return s.store }

// Auth exposes the token registry.
func (s *Server) Auth() *Auth { return s.auth }

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()
	for _, mw := range app.MiddlewareStack(app.MiddlewareConfig{
		Logger:         s.logger,
		Production:     opts.Production,
		RequestTimeout: opts.RequestTimeout,
		Metrics:        s.metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	rate := opts.LoginRate
	if rate <= 0 {
		rate = 20
	}
	r.With(httprate.LimitByIP(rate, time.Minute)).Post("/login", s.login)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/me", s.me)

		r.Route("/clientes", func(r chi.Router) {
			r.Get("/", s.listClientes)
			r.Post("/", s.createCliente)
			r.Get("/importar", s.importClientes)
			r.Get("/{id}", s.showCliente)
			r.Put("/{id}", s.updateCliente)
			r.Delete("/{id}", s.deleteCliente)
		})
		r.Route("/produtos", func(r chi.Router) {
			r.Get("/", s.listProdutos)
			r.Post("/", s.createProduto)
			r.Get("/{id}", s.showProduto)
			r.Put("/{id}", s.updateProduto)
			r.Delete("/{id}", s.deleteProduto)
		})
		r.Route("/estoque", func(r chi.Router) {
			r.Get("/", s.listEstoque)
			r.Get("/{id}", s.showEstoque)
			r.Put("/{id}", s.updateEstoque)
		})
		r.Route("/vendas", func(r chi.Router) {
			r.Get("/", s.listVendas)
			r.Post("/", s.createVenda)
			r.Get("/{id}", s.showVenda)
			r.Delete("/{id}", s.deleteVenda)
		})
		r.Get("/financeiro", s.financeiro)
		r.Post("/forecast/auto", s.forecast)
		r.Get("/relatorios/{kind}/exportar", s.exportRelatorio)
	})
	return r
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.logger.Info("login rejected", slog.String("username", req.Username))
		httpx.RespondError(w, err)
		return
	}
	s.logger.Info("login", slog.String("username", req.Username))
	httpx.JSON(w, http.StatusOK, map[string]string{"token": token, "username": req.Username})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"username": UsernameFromContext(r.Context())})
}

// respondList answers with the paginated envelope when page or size is
// given and with a bare array otherwise.
func respondList[T any](w http.ResponseWriter, r *http.Request, items []T) {
	q := r.URL.Query()
	if !q.Has("page") && !q.Has("size") {
		httpx.JSON(w, http.StatusOK, items)
		return
	}
	page, err := intParam(q.Get("page"), 0)
	if err != nil || page < 0 {
		httpx.RespondError(w, httpx.Errorf(httpx.ErrValidation, "Parâmetro page inválido"))
		return
	}
	size, err := intParam(q.Get("size"), 10)
	if err != nil || size < 1 {
		httpx.RespondError(w, httpx.Errorf(httpx.ErrValidation, "Parâmetro size inválido"))
		return
	}
	total := len(items)
	start := min(page*size, total)
	end := min(start+size, total)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"content":       items[start:end],
		"totalPages":    (total + size - 1) / size,
		"totalElements": total,
		"number":        page,
		"size":          size,
	})
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.Errorf(httpx.ErrValidation, "ID inválido")
	}
	return id, nil
}

// respond writes v as JSON or err as a problem document.
func respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, v)
}

func (s *Server) listClientes(w http.ResponseWriter, r *http.Request) {
	respondList(w, r, s.store.Clientes(r.URL.Query().Get("search")))
}

func (s *Server) showCliente(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := s.store.Cliente(id)
	respond(w, http.StatusOK, c, err)
}

func (s *Server) createCliente(w http.ResponseWriter, r *http.Request) {
	var c erp.Cliente
	if err := httpx.DecodeJSON(r, &c); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c.ID = 0
	saved, err := s.store.SaveCliente(c)
	respond(w, http.StatusCreated, saved, err)
}

func (s *Server) updateCliente(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var c erp.Cliente
	if err := httpx.DecodeJSON(r, &c); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c.ID = id
	saved, err := s.store.SaveCliente(c)
	respond(w, http.StatusOK, saved, err)
}

func (s *Server) deleteCliente(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err == nil {
		err = s.store.DeleteCliente(id)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) importClientes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("filePath")
	if path == "" {
		httpx.RespondError(w, httpx.Errorf(httpx.ErrValidation, "Parâmetro filePath obrigatório"))
		return
	}
	res, err := ImportClientes(s.store, path)
	if err == nil {
		s.logger.Info("clientes imported", slog.String("path", path), slog.Int("count", res.Importados), slog.Int("errors", len(res.Erros)))
	}
	respond(w, http.StatusOK, res, err)
}

func (s *Server) listProdutos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	respondList(w, r, s.store.Produtos(q.Get("search"), q.Get("categoria")))
}

func (s *Server) showProduto(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := s.store.Produto(id)
	respond(w, http.StatusOK, p, err)
}

func (s *Server) createProduto(w http.ResponseWriter, r *http.Request) {
	var p erp.Produto
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p.ID = 0
	saved, err := s.store.SaveProduto(p)
	respond(w, http.StatusCreated, saved, err)
}

func (s *Server) updateProduto(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var p erp.Produto
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p.ID = id
	saved, err := s.store.SaveProduto(p)
	respond(w, http.StatusOK, saved, err)
}

func (s *Server) deleteProduto(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err == nil {
		err = s.store.DeleteProduto(id)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listEstoque(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	low, _ := strconv.ParseBool(q.Get("lowStock"))
	respondList(w, r, s.store.Estoque(q.Get("search"), low))
}

func (s *Server) showEstoque(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := s.store.EstoqueRow(id)
	respond(w, http.StatusOK, e, err)
}

func (s *Server) updateEstoque(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var e erp.Estoque
	if err := httpx.DecodeJSON(r, &e); err != nil {
		httpx.RespondError(w, err)
		return
	}
	e.ID = id
	saved, err := s.store.UpdateEstoque(e)
	respond(w, http.StatusOK, saved, err)
}

func (s *Server) listVendas(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := VendaFilter{NomeCliente: q.Get("nomeCliente")}
	for key, dst := range map[string]**decimal.Decimal{"valorMin": &f.ValorMin, "valorMax": &f.ValorMax} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			httpx.RespondError(w, httpx.Errorf(httpx.ErrValidation, "Parâmetro %s inválido", key))
			return
		}
		*dst = &v
	}
	respondList(w, r, s.store.Vendas(f))
}

func (s *Server) showVenda(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := s.store.Venda(id)
	respond(w, http.StatusOK, v, err)
}

func (s *Server) createVenda(w http.ResponseWriter, r *http.Request) {
	var v erp.Venda
	if err := httpx.DecodeJSON(r, &v); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v.ID = 0
	saved, err := s.store.RegisterVenda(v)
	if err == nil {
		s.logger.Info("venda registered", slog.Int64("id", saved.ID), slog.String("total", saved.Total.StringFixed(2)))
	}
	respond(w, http.StatusCreated, saved, err)
}

func (s *Server) deleteVenda(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err == nil {
		err = s.store.DeleteVenda(id)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) financeiro(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Financeiro(s.store.snapshot(), s.now()))
}

func (s *Server) forecast(w http.ResponseWriter, r *http.Request) {
	var req erp.ForecastRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := Forecast(s.store.snapshot().Vendas, req, s.now())
	respond(w, http.StatusOK, res, err)
}

func (s *Server) exportRelatorio(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	data, err := ExportCSV(s.store.snapshot(), kind)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.CSV(w, "relatorio_"+kind+"_"+s.now().Format("20060102")+".csv", data)
}
