package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"marketvault/internal/parquetio"
	"marketvault/internal/store"
)

// StorageConfig is storage_config.json (§6.4): a global partitioned/legacy
// default with per-market and per-(market,source) overrides, most specific
// wins. Grounded on
// _examples/original_source/src/yf_parqed/common/config_service.py's
// _normalize_storage_config / is_partitioned_enabled.
type StorageConfig struct {
	Partitioned bool            `json:"partitioned"`
	Markets     map[string]bool `json:"markets"`
	Sources     map[string]bool `json:"sources"`
}

func defaultStorageConfig() StorageConfig {
	return StorageConfig{Partitioned: true, Markets: map[string]bool{}, Sources: map[string]bool{}}
}

func normalizeMarketKey(market string) string {
	return strings.ToLower(strings.TrimSpace(market))
}

func normalizeSourceKey(market, source string) string {
	return normalizeMarketKey(market) + "/" + strings.ToLower(strings.TrimSpace(source))
}

// isPartitioned answers the most-specific-override-wins question for a
// given (market, source) pair. An empty source checks the market-level
// override only.
func (c StorageConfig) isPartitioned(market, source string) bool {
	if market != "" && source != "" {
		if v, ok := c.Sources[normalizeSourceKey(market, source)]; ok {
			return v
		}
	}
	if market != "" {
		if v, ok := c.Markets[normalizeMarketKey(market)]; ok {
			return v
		}
	}
	return c.Partitioned
}

// Service owns the process-wide "global mutable state" JSON documents
// named in §9 — intervals.json and storage_config.json here; tickers.json
// and migration_plan.json have their own dedicated owners
// (registry.Registry, migration.Plan) since each already carries
// load/save/mutate semantics specific to its shape. Service is constructed
// once and passed by reference; there is no package-level singleton.
type Service struct {
	baseDir string
}

// NewService constructs a Service rooted at baseDir (the data root
// containing intervals.json and storage_config.json).
func NewService(baseDir string) *Service {
	return &Service{baseDir: baseDir}
}

func (s *Service) intervalsPath() string     { return filepath.Join(s.baseDir, "intervals.json") }
func (s *Service) storageConfigPath() string { return filepath.Join(s.baseDir, "storage_config.json") }

// LoadIntervals reads intervals.json, returning an empty slice if absent.
func (s *Service) LoadIntervals() ([]string, error) {
	data, err := os.ReadFile(s.intervalsPath())
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", s.intervalsPath(), err)
	}
	var intervals []string
	if err := json.Unmarshal(data, &intervals); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", s.intervalsPath(), err)
	}
	return intervals, nil
}

// SaveIntervals whole-file-rewrites intervals.json.
func (s *Service) SaveIntervals(intervals []string) error {
	return writeJSONAtomic(s.intervalsPath(), intervals)
}

// AddInterval appends interval if not already present.
func (s *Service) AddInterval(interval string) error {
	intervals, err := s.LoadIntervals()
	if err != nil {
		return err
	}
	for _, existing := range intervals {
		if existing == interval {
			return nil
		}
	}
	return s.SaveIntervals(append(intervals, interval))
}

// RemoveInterval drops interval if present.
func (s *Service) RemoveInterval(interval string) error {
	intervals, err := s.LoadIntervals()
	if err != nil {
		return err
	}
	out := intervals[:0]
	for _, existing := range intervals {
		if existing != interval {
			out = append(out, existing)
		}
	}
	return s.SaveIntervals(out)
}

// LoadStorageConfig reads storage_config.json, defaulting to
// partitioned-by-default for a fresh install if the file is absent.
func (s *Service) LoadStorageConfig() (StorageConfig, error) {
	data, err := os.ReadFile(s.storageConfigPath())
	if os.IsNotExist(err) {
		return defaultStorageConfig(), nil
	}
	if err != nil {
		return StorageConfig{}, fmt.Errorf("config: read %s: %w", s.storageConfigPath(), err)
	}
	var cfg StorageConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return StorageConfig{}, fmt.Errorf("config: parse %s: %w", s.storageConfigPath(), err)
	}
	if cfg.Markets == nil {
		cfg.Markets = map[string]bool{}
	}
	if cfg.Sources == nil {
		cfg.Sources = map[string]bool{}
	}
	return cfg, nil
}

func (s *Service) saveStorageConfig(cfg StorageConfig) error {
	return writeJSONAtomic(s.storageConfigPath(), cfg)
}

// SetPartitionMode sets the global default.
func (s *Service) SetPartitionMode(enabled bool) error {
	cfg, err := s.LoadStorageConfig()
	if err != nil {
		return err
	}
	cfg.Partitioned = enabled
	return s.saveStorageConfig(cfg)
}

// SetMarketPartitionMode sets a per-market override.
func (s *Service) SetMarketPartitionMode(market string, enabled bool) error {
	cfg, err := s.LoadStorageConfig()
	if err != nil {
		return err
	}
	cfg.Markets[normalizeMarketKey(market)] = enabled
	return s.saveStorageConfig(cfg)
}

// SetSourcePartitionMode sets a per-(market,source) override — the most
// specific level, and the one the Migration Coordinator flips on after a
// verified migration (its ActivatePartitionedStorage hook).
func (s *Service) SetSourcePartitionMode(market, source string, enabled bool) error {
	cfg, err := s.LoadStorageConfig()
	if err != nil {
		return err
	}
	cfg.Sources[normalizeSourceKey(market, source)] = enabled
	return s.saveStorageConfig(cfg)
}

// IsPartitionedEnabled answers the dispatch question for (market, source).
func (s *Service) IsPartitionedEnabled(market, source string) (bool, error) {
	cfg, err := s.LoadStorageConfig()
	if err != nil {
		return false, err
	}
	return cfg.isPartitioned(market, source), nil
}

// ActivatePartitionedStorage returns a callback suitable for
// migration.Coordinator.ActivatePartitionedStorage: flipping the
// per-source override to true once a migration verifies clean.
func (s *Service) ActivatePartitionedStorage() func(market, source string) error {
	return func(market, source string) error {
		return s.SetSourcePartitionMode(market, source, true)
	}
}

// BarStoreFor implements the §9 "Dynamic dispatch across storage backends"
// router: it consults storage_config.json and returns whichever of the two
// fixed Backend variants (Legacy or Partitioned) should serve reads/writes
// for this (market, source) pair.
func (s *Service) BarStoreFor(root, market, source string, opts parquetio.WriteOptions) (store.BarStore, error) {
	partitioned, err := s.IsPartitionedEnabled(market, source)
	if err != nil {
		return nil, err
	}
	if partitioned {
		return store.NewPartitionedBackend(root, opts), nil
	}
	return store.NewLegacyBackend(root, opts), nil
}

// writeJSONAtomic marshals v and rewrites path via the same
// same-directory temp-rename protocol as the other shared-state JSON
// documents (registry.Registry.saveLocked, migration.Plan.Write), so a
// crash mid-write never corrupts the file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}
