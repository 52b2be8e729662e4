package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// SeedFile is the YAML bootstrap format for questionnaires and tariffs. It is
// used to populate an empty database and to run the service without one in
// development.
type SeedFile struct {
	Questionnaires []models.QuestionnaireDefinition `yaml:"questionnaires"`
	Tariffs        []models.Tariff                  `yaml:"tariffs"`
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i := range seed.Questionnaires {
		if err := seed.Questionnaires[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &seed, nil
}

// LoadSeedFile reads and parses a YAML seed file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	slog.Debug("Loading seed file", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, err
	}
	slog.Info("Seed file loaded", "path", path,
		"questionnaires", len(seed.Questionnaires), "tariffs", len(seed.Tariffs))
	return seed, nil
}

// SeedSource serves questionnaire definitions straight from a parsed seed
// file. It implements the engine's DefinitionSource contract for database-less
// development mode.
type SeedSource struct {
	seed *SeedFile
}

// NewSeedSource wraps a parsed seed file as a definition source.
func NewSeedSource(seed *SeedFile) *SeedSource {
	return &SeedSource{seed: seed}
}

// LoadDefinitions returns the seed file's questionnaire definitions.
func (s *SeedSource) LoadDefinitions(ctx context.Context) ([]models.QuestionnaireDefinition, error) {
	out := make([]models.QuestionnaireDefinition, len(s.seed.Questionnaires))
	copy(out, s.seed.Questionnaires)
	return out, nil
}
