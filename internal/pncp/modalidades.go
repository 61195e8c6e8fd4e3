package pncp

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed modalidades.yaml
var modalidadesYAML []byte

// Modalidade is one contracting modality as catalogued by the portal.
type Modalidade struct {
	Codigo  int    `yaml:"codigo"`
	Nome    string `yaml:"nome"`
	Default bool   `yaml:"default"`
}

type modalidadeFile struct {
	Modalidades []Modalidade `yaml:"modalidades"`
}

// LoadModalidades parses the embedded modality catalogue.
func LoadModalidades() ([]Modalidade, error) {
	var f modalidadeFile
	if err := yaml.Unmarshal(modalidadesYAML, &f); err != nil {
		return nil, fmt.Errorf("parsing modalidades catalogue: %w", err)
	}
	if len(f.Modalidades) == 0 {
		return nil, fmt.Errorf("modalidades catalogue is empty")
	}
	sort.Slice(f.Modalidades, func(i, j int) bool {
		return f.Modalidades[i].Codigo < f.Modalidades[j].Codigo
	})
	return f.Modalidades, nil
}

// DefaultModalidades returns the modality codes applied when a search
// profile does not restrict modalities.
func DefaultModalidades() []int {
	all, err := LoadModalidades()
	if err != nil {
		// Embedded file, parse errors only happen on a bad edit.
		panic(err)
	}
	codes := make([]int, 0, len(all))
	for _, m := range all {
		if m.Default {
			codes = append(codes, m.Codigo)
		}
	}
	return codes
}

// ModalidadeNome resolves a modality code to its display name.
func ModalidadeNome(codigo int) string {
	all, err := LoadModalidades()
	if err != nil {
		return ""
	}
	for _, m := range all {
		if m.Codigo == codigo {
			return m.Nome
		}
	}
	return ""
}
