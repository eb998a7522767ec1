// Package registry owns the shift definition configuration: reads, validated
// writes, and first-run seeding from an optional YAML file.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"shiftwake/internal/domain"
)

// ErrNoConfig is returned by ConfigStore implementations when no shift
// configuration has ever been saved.
var ErrNoConfig = errors.New("registry: no shift configuration stored")

// ConfigStore persists the shift configuration.
type ConfigStore interface {
	LoadShiftConfig(ctx context.Context) (domain.ShiftConfig, error)
	SaveShiftConfig(ctx context.Context, config domain.ShiftConfig) error
}

// CacheInvalidator drops derived state that depends on the configuration.
type CacheInvalidator interface {
	InvalidateCache()
}

// Registry is the single authority for shift configuration. All writes go
// through Save so cache invalidation ordering holds everywhere.
type Registry struct {
	store       ConfigStore
	invalidator CacheInvalidator // optional, nil = no cache to drop
	seedPath    string
}

func New(store ConfigStore) *Registry {
	return &Registry{store: store}
}

// WithInvalidator attaches the recognition cache invalidator.
func (r *Registry) WithInvalidator(inv CacheInvalidator) *Registry {
	r.invalidator = inv
	return r
}

// WithSeedFile sets the YAML file used to seed the configuration on first run.
func (r *Registry) WithSeedFile(path string) *Registry {
	r.seedPath = path
	return r
}

// Get returns the current shift configuration, seeding it on first run.
func (r *Registry) Get(ctx context.Context) (domain.ShiftConfig, error) {
	config, err := r.store.LoadShiftConfig(ctx)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, ErrNoConfig) {
		return domain.ShiftConfig{}, &domain.StorageError{Op: "load shift config", Err: err}
	}

	seeded, err := r.seed()
	if err != nil {
		return domain.ShiftConfig{}, err
	}
	if err := r.Save(ctx, seeded); err != nil {
		return domain.ShiftConfig{}, err
	}
	log.Printf("registry: seeded %d shift definitions", len(seeded.Definitions))
	return seeded, nil
}

// Save validates and persists the configuration. The recognition cache is
// invalidated strictly after the write succeeds, so a failed write never
// leaves the cache dropped while storage still holds the old configuration.
func (r *Registry) Save(ctx context.Context, config domain.ShiftConfig) error {
	if err := validate(config); err != nil {
		return err
	}
	if err := r.store.SaveShiftConfig(ctx, config); err != nil {
		return &domain.StorageError{Op: "save shift config", Err: err}
	}
	if r.invalidator != nil {
		r.invalidator.InvalidateCache()
	}
	return nil
}

// SetDefinitionEnabled toggles one definition and persists the result.
func (r *Registry) SetDefinitionEnabled(ctx context.Context, id string, enabled bool) error {
	config, err := r.Get(ctx)
	if err != nil {
		return err
	}
	found := false
	for i := range config.Definitions {
		if config.Definitions[i].ID == id {
			config.Definitions[i].Enabled = enabled
			found = true
			break
		}
	}
	if !found {
		return &domain.ValidationError{Field: "id", Message: fmt.Sprintf("unknown shift definition %q", id)}
	}
	return r.Save(ctx, config)
}

// SetAutoAlarm toggles the global automation flag and persists the result.
func (r *Registry) SetAutoAlarm(ctx context.Context, enabled bool) error {
	config, err := r.Get(ctx)
	if err != nil {
		return err
	}
	config.AutoAlarmEnabled = enabled
	return r.Save(ctx, config)
}

func validate(config domain.ShiftConfig) error {
	if config.LookaheadDays < 0 {
		return &domain.ValidationError{Field: "lookahead_days", Message: "must not be negative"}
	}
	seen := make(map[string]struct{}, len(config.Definitions))
	for i, def := range config.Definitions {
		if !def.Valid() {
			return &domain.ValidationError{Field: "definitions", Message: fmt.Sprintf("definition %d needs an id and at least one keyword", i)}
		}
		if _, dup := seen[def.ID]; dup {
			return &domain.ValidationError{Field: "id", Message: fmt.Sprintf("duplicate shift definition id %q", def.ID)}
		}
		seen[def.ID] = struct{}{}
	}
	return nil
}

// seedFile is the YAML shape of the seed file.
type seedFile struct {
	AutoAlarmEnabled bool `yaml:"auto_alarm_enabled"`
	LookaheadDays    int  `yaml:"lookahead_days"`
	Definitions      []struct {
		ID        string   `yaml:"id"`
		Name      string   `yaml:"name"`
		Keywords  []string `yaml:"keywords"`
		AlarmTime string   `yaml:"alarm_time"`
		Enabled   bool     `yaml:"enabled"`
	} `yaml:"definitions"`
}

func (r *Registry) seed() (domain.ShiftConfig, error) {
	if r.seedPath == "" {
		return defaultConfig(), nil
	}
	raw, err := os.ReadFile(r.seedPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("registry: seed file %s not found, using built-in defaults", r.seedPath)
			return defaultConfig(), nil
		}
		return domain.ShiftConfig{}, fmt.Errorf("read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.ShiftConfig{}, fmt.Errorf("parse seed file %s: %w", r.seedPath, err)
	}

	config := domain.ShiftConfig{
		AutoAlarmEnabled: file.AutoAlarmEnabled,
		LookaheadDays:    file.LookaheadDays,
	}
	for _, def := range file.Definitions {
		at, err := domain.ParseTimeOfDay(def.AlarmTime)
		if err != nil {
			return domain.ShiftConfig{}, fmt.Errorf("seed definition %q: %w", def.ID, err)
		}
		config.Definitions = append(config.Definitions, domain.ShiftDefinition{
			ID:        def.ID,
			Name:      def.Name,
			Keywords:  def.Keywords,
			AlarmTime: at,
			Enabled:   def.Enabled,
		})
	}
	if err := validate(config); err != nil {
		return domain.ShiftConfig{}, fmt.Errorf("seed file %s: %w", r.seedPath, err)
	}
	return config, nil
}

// defaultConfig is the built-in three-shift rotation used when no seed file
// is configured.
func defaultConfig() domain.ShiftConfig {
	return domain.ShiftConfig{
		AutoAlarmEnabled: true,
		LookaheadDays:    domain.DefaultLookaheadDays,
		Definitions: []domain.ShiftDefinition{
			{
				ID:        "early",
				Name:      "Frühschicht",
				Keywords:  []string{"frühschicht", "früh"},
				AlarmTime: domain.TimeOfDay{Hour: 4, Minute: 30},
				Enabled:   true,
			},
			{
				ID:        "late",
				Name:      "Spätschicht",
				Keywords:  []string{"spätschicht", "spät"},
				AlarmTime: domain.TimeOfDay{Hour: 11, Minute: 30},
				Enabled:   true,
			},
			{
				ID:        "night",
				Name:      "Nachtschicht",
				Keywords:  []string{"nachtschicht", "nacht"},
				AlarmTime: domain.TimeOfDay{Hour: 19, Minute: 30},
				Enabled:   true,
			},
		},
	}
}
