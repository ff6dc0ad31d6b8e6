package sandbox

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/lojaerp/erp-console/internal/erp"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is the initial sandbox data.
type Seed struct {
	Clientes []erp.Cliente `json:"clientes"`
	Produtos []erp.Produto `json:"produtos"`
	Estoque  []erp.Estoque `json:"estoque"`
	Vendas   []erp.Venda   `json:"vendas"`
}

// DefaultSeed returns the bundled demo data.
func DefaultSeed() Seed {
	seed, err := parseSeed(defaultSeed)
	if err != nil {
		panic(fmt.Sprintf("sandbox: bundled seed: %v", err))
	}
	return seed
}

// LoadSeed reads seed data written in YAML. Field names follow the REST
// payloads (clienteId, precoUnitario, ...).
func LoadSeed(r io.Reader) (Seed, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Seed{}, fmt.Errorf("sandbox: read seed: %w", err)
	}
	return parseSeed(raw)
}

func parseSeed(raw []byte) (Seed, error) {
	// Decoding through JSON reuses the payload tags of the erp types.
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Seed{}, fmt.Errorf("sandbox: parse seed: %w", err)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return Seed{}, fmt.Errorf("sandbox: convert seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(payload, &seed); err != nil {
		return Seed{}, fmt.Errorf("sandbox: decode seed: %w", err)
	}
	return seed, nil
}
