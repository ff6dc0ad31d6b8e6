package erp

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lojaerp/erp-console/internal/shared"
)

var cpfPattern = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return cpfPattern.MatchString(fl.Field().String())
	})
	return v
}

// fieldMessages holds the form messages keyed by field then rule.
var fieldMessages = map[string]map[string]string{
	"nome":             {"required": "Nome é obrigatório"},
	"cpf":              {"required": "CPF é obrigatório", "cpf": "CPF deve estar no formato 000.000.000-00"},
	"endereco":         {"required": "Endereço é obrigatório"},
	"telefone":         {"required": "Telefone é obrigatório"},
	"email":            {"required": "Email é obrigatório", "email": "Email inválido"},
	"codigo":           {"required": "Código é obrigatório"},
	"preco":            {"gt": "Preço deve ser maior que zero"},
	"categoria":        {"required": "Categoria é obrigatória"},
	"descricao":        {"required": "Descrição é obrigatória"},
	"quantidade":       {"gte": "Quantidade não pode ser negativa", "min": "Mínimo 1"},
	"quantidadeMinima": {"gte": "Quantidade mínima não pode ser negativa"},
	"clienteId":        {"gt": "Selecione um cliente"},
	"produtoId":        {"gt": "Selecione um produto"},
	"itens":            {"min": "Adicione ao menos um item"},
	"daysAhead":        {"oneof": "Horizonte deve ser 7, 14, 30, 60 ou 90 dias"},
	"modelType":        {"oneof": "Modelo deve ser prophet, arima, lstm ou ensemble"},
}

// Validate checks a form value before it is sent. Failures are reported as
// *shared.ValidationError keyed by JSON field path (e.g. "itens[0].quantidade").
func Validate(value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		if _, seen := fields[path]; seen {
			continue
		}
		fields[path] = messageFor(fe)
	}
	return shared.NewValidationError(fields)
}

func messageFor(fe validator.FieldError) string {
	if byTag, ok := fieldMessages[fe.Field()]; ok {
		if msg, ok := byTag[fe.Tag()]; ok {
			return msg
		}
	}
	if fe.Tag() == "required" {
		return "Campo obrigatório"
	}
	return "Valor inválido"
}
