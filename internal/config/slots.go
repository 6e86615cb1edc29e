package config

import (
	"errors"
	"fmt"
	"os"

	"slotbook/internal/models"

	"gopkg.in/yaml.v3"
)

// SlotsFile is the on-disk list of slot configurations to generate.
type SlotsFile struct {
	Configurations []SlotEntry `yaml:"configurations"`
}

// SlotEntry is one configuration as written in YAML.
type SlotEntry struct {
	Day       string `yaml:"day"`
	StartHour int    `yaml:"start_hour"`
	EndHour   int    `yaml:"end_hour"`
}

// LoadSlotsFile parses the slot configuration file at path.
func LoadSlotsFile(path string) (*SlotsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f SlotsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// SlotConfigurations converts entries to slot configurations. Entries that do not
// parse are skipped and reported together in the returned error, so callers
// can still generate the valid ones.
func (f *SlotsFile) SlotConfigurations() ([]models.SlotConfiguration, error) {
	cfgs := make([]models.SlotConfiguration, 0, len(f.Configurations))
	var errs []error
	for i, e := range f.Configurations {
		cfg, err := models.ParseSlotConfiguration(e.Day, e.StartHour, e.EndHour)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, errors.Join(errs...)
}
