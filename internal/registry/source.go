package registry

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/af-corp/helmsman/internal/types"
)

// catalogFile is the on-disk shape of the model catalog.
type catalogFile struct {
	Models []types.Model `yaml:"models"`
}

// FileSource loads the catalog from a YAML file.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Load(ctx context.Context) ([]types.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", s.Path, err)
	}
	var cat catalogFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", s.Path, err)
	}
	return cat.Models, nil
}

// StaticSource serves a fixed catalog, useful for tests and embedded
// deployments.
type StaticSource struct {
	Models []types.Model
	Err    error
}

func (s *StaticSource) Load(ctx context.Context) ([]types.Model, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Models, nil
}
