package registry

import (
	"errors"
	"fmt"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

var ErrUnknownTag = errors.New("unknown device tag")

// Registry maps device tags to human readable names. It is never mutated
// after construction.
type Registry struct {
	names map[model.Tag]string
}

type Device struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type file struct {
	Devices []Device `yaml:"devices"`
}

var defaultDevices = []Device{
	{ID: "369507//1", Name: "pump"},
	{ID: "369507//2", Name: "ev1"},
	{ID: "369507//3", Name: "ev2"},
	{ID: "107839//3", Name: "pot2_1"},
	{ID: "107839//4", Name: "pot2_2"},
	{ID: "107839//5", Name: "pot1_1"},
	{ID: "107839//7", Name: "main_flow"},
	{ID: "285105//0", Name: "pot1"},
	{ID: "285105//1", Name: "pot2"},
	{ID: "285105//2", Name: "water_reserve"},
	{ID: "285105//4", Name: "ambiant"},
	{ID: "167.121", Name: "pot1"},
	{ID: "81.174", Name: "pot2"},
}

func New(devices []Device) *Registry {
	return &Registry{
		names: lo.SliceToMap(devices, func(d Device) (model.Tag, string) {
			return model.Tag(d.ID), d.Name
		}),
	}
}

// Default returns the registry of the rig as wired.
func Default() *Registry {
	return New(defaultDevices)
}

// Load reads a YAML device-config file. An empty path yields the default table.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device config: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse device config: %w", err)
	}
	for _, d := range f.Devices {
		if d.ID == "" || d.Name == "" {
			return nil, fmt.Errorf("invalid device config entry %+v", d)
		}
	}
	return New(f.Devices), nil
}

func (r *Registry) NameOf(tag model.Tag) (string, error) {
	name, ok := r.names[tag]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	return name, nil
}

// Validate returns an error naming every tag that is not registered.
func (r *Registry) Validate(tags ...model.Tag) error {
	missing := lo.Reject(tags, func(t model.Tag, _ int) bool {
		_, ok := r.names[t]
		return ok
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrUnknownTag, missing)
	}
	return nil
}

func (r *Registry) Tags() []model.Tag {
	return lo.Keys(r.names)
}
