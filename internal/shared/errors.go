package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidCredentials indicates the backend rejected a login attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired indicates a 401 on an authenticated call.
	ErrSessionExpired = errors.New("session expired")
	// ErrPermissionDenied indicates a 403.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrServerError covers 5xx and unclassified 4xx responses.
	ErrServerError = errors.New("server error")
	// ErrNetworkUnavailable indicates no response was received.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrTimeout indicates the request deadline elapsed.
	ErrTimeout = errors.New("request timeout")
	// ErrValidation indicates input rejected before or by the backend.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a sale exceeds the known stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// APIError describes a failed backend call. Kind is one of the sentinel
// errors above, so callers match with errors.Is.
type APIError struct {
	Kind    error
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Kind }

// ValidationError carries field level messages that block submission.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field messages.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StockError reports a sale item exceeding the last known stock level.
type StockError struct {
	ProdutoID int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("estoque insuficiente para o produto %d: solicitado %d, disponível %d", e.ProdutoID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// UserMessage renders err the way it is shown to the operator.
func UserMessage(err error) string {
	var verr *ValidationError
	var serr *StockError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &serr):
		return serr.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return "Usuário ou senha inválidos"
	case errors.Is(err, ErrSessionExpired):
		return "Sessão expirada. Faça login novamente."
	case errors.Is(err, ErrPermissionDenied):
		return "Você não tem permissão para esta ação"
	case errors.Is(err, ErrTimeout):
		return "Tempo de conexão esgotado. Verifique sua internet."
	case errors.Is(err, ErrNetworkUnavailable):
		return "Não foi possível conectar ao servidor"
	case errors.Is(err, ErrNotFound):
		return "Registro não encontrado"
	case errors.Is(err, ErrValidation):
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return apiErr.Message
		}
		return "Dados inválidos"
	default:
		return "Erro no servidor. Tente novamente."
	}
}
