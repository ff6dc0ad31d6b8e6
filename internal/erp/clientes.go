package erp

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/lojaerp/erp-console/internal/shared"
)

const clientesPath = "/clientes"

// ClienteService binds /clientes.
type ClienteService struct {
	resource
}

// ImportResult is the backend's answer to a CSV import.
type ImportResult struct {
	Message    string   `json:"message"`
	Importados int      `json:"importados"`
	Erros      []string `json:"erros"`
}

// List returns one page of customers.
func (s *ClienteService) List(ctx context.Context, params ListParams) (shared.Page[Cliente], error) {
	return listPage[Cliente](ctx, s.backend, "clientes.list", clientesPath, "search", params)
}

// All loads every customer.
func (s *ClienteService) All(ctx context.Context) ([]Cliente, error) {
	return fetchAll[Cliente](ctx, s.backend, "clientes.all", clientesPath)
}

// Get loads a single customer.
func (s *ClienteService) Get(ctx context.Context, id int64) (Cliente, error) {
	var c Cliente
	err := s.backend.GetJSON(ctx, "clientes.get", itemPath(clientesPath, id), nil, &c)
	return c, err
}

// Create validates and registers a customer.
func (s *ClienteService) Create(ctx context.Context, c Cliente) (Cliente, error) {
	if err := Validate(c); err != nil {
		return Cliente{}, err
	}
	c.ID = 0
	c.CreatedAt = s.timestamp()
	var out Cliente
	if err := s.backend.PostJSON(ctx, "clientes.create", clientesPath, c, &out); err != nil {
		return Cliente{}, err
	}
	s.success(ctx, "Cliente cadastrado com sucesso!")
	return out, nil
}

// Update replaces the customer record.
func (s *ClienteService) Update(ctx context.Context, id int64, c Cliente) (Cliente, error) {
	if err := Validate(c); err != nil {
		return Cliente{}, err
	}
	c.ID = id
	var out Cliente
	if err := s.backend.PutJSON(ctx, "clientes.update", itemPath(clientesPath, id), c, &out); err != nil {
		return Cliente{}, err
	}
	s.success(ctx, "Cliente atualizado com sucesso!")
	return out, nil
}

// Delete removes a customer.
func (s *ClienteService) Delete(ctx context.Context, id int64) error {
	if err := s.backend.Delete(ctx, "clientes.delete", itemPath(clientesPath, id)); err != nil {
		return err
	}
	s.success(ctx, "Cliente excluído com sucesso!")
	return nil
}

// Import asks the backend to import customers from a CSV file at a path on
// the server's filesystem.
func (s *ClienteService) Import(ctx context.Context, filePath string) (ImportResult, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return ImportResult{}, shared.NewValidationError(map[string]string{"filePath": "Por favor, insira o caminho do arquivo CSV."})
	}
	if !strings.EqualFold(pathExt(filePath), ".csv") {
		return ImportResult{}, shared.NewValidationError(map[string]string{"filePath": "O arquivo deve ter extensão .csv"})
	}
	q := url.Values{}
	q.Set("filePath", filePath)
	var out ImportResult
	if err := s.backend.GetJSON(ctx, "clientes.import", clientesPath+"/importar", q, &out); err != nil {
		return ImportResult{}, err
	}
	msg := out.Message
	if msg == "" {
		msg = "Clientes importados com sucesso!"
	}
	s.success(ctx, msg)
	return out, nil
}

// pathExt handles both slash styles since the path names a file on the
// backend host, whose OS is unknown.
func pathExt(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i:]
	}
	return ""
}

// IsDuplicate reports a uniqueness rejection (cpf or email already used).
func IsDuplicate(err error) bool {
	var apiErr *shared.APIError
	return errors.As(err, &apiErr) && apiErr.Status == 409
}
