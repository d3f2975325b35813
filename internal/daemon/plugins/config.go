package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/config"
)

// MaxConfigSize is the largest plugin config payload accepted, in bytes.
const MaxConfigSize = 1 << 20

// Sentinel errors for config operations. Handlers match on these to pick a
// status code without leaking filesystem detail to the caller.
var (
	ErrInvalidID      = errors.New("invalid plugin id")
	ErrConfigNotFound = errors.New("plugin config not found")
	ErrConfigTooLarge = errors.New("plugin config exceeds size limit")
	ErrConfigInvalid  = errors.New("plugin config is not valid JSON")
	ErrKeyNotBoolean  = errors.New("config key does not hold a boolean")
)

// ConfigStore persists per-plugin configuration in two places: a primary
// config.json inside each plugin's directory, and an aggregate backup file
// keyed by plugin id. Saves write the backup first so a crash between the
// two writes loses at most the primary copy, which the next load repairs
// from the aggregate.
type ConfigStore struct {
	log        *zap.Logger
	pluginsDir string
	backupPath string
	mu         sync.Mutex
}

// NewConfigStore creates a config store rooted at pluginsDir with the
// aggregate backup at backupPath.
func NewConfigStore(pluginsDir, backupPath string, log *zap.Logger) *ConfigStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConfigStore{
		log:        log,
		pluginsDir: pluginsDir,
		backupPath: backupPath,
	}
}

// Load returns the stored config for the given plugin. When the primary copy
// is missing or unreadable it falls back to the aggregate backup and writes
// the recovered payload back to the primary location.
func (s *ConfigStore) Load(id string) (json.RawMessage, error) {
	if !IsSafeID(id) {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.primaryPath(id))
	if err == nil {
		if len(raw) <= MaxConfigSize && json.Valid(raw) {
			return raw, nil
		}
		s.log.Warn("plugin config corrupted, trying backup",
			zap.String("plugin", id),
			zap.Int("size", len(raw)))
	} else if !os.IsNotExist(err) {
		s.log.Warn("plugin config unreadable, trying backup",
			zap.String("plugin", id),
			zap.Error(err))
	}

	return s.restoreFromBackup(id)
}

// Save validates and persists a plugin config to both locations.
func (s *ConfigStore) Save(id string, raw json.RawMessage) error {
	if !IsSafeID(id) {
		return ErrInvalidID
	}
	if len(raw) > MaxConfigSize {
		return ErrConfigTooLarge
	}
	if !json.Valid(raw) {
		return ErrConfigInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(id, raw)
}

// Toggle flips the boolean at a dotted key in the plugin's config and
// persists the result to both locations. A missing config or key counts as
// false, so the first toggle turns the setting on; intermediate objects
// along the path are created as needed.
func (s *ConfigStore) Toggle(id, key string) (bool, error) {
	if !IsSafeID(id) {
		return false, ErrInvalidID
	}
	if key == "" {
		return false, ErrKeyNotBoolean
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.loadObjectLocked(id)
	if err != nil {
		return false, err
	}
	cur, _, err := boolAt(obj, key)
	if err != nil {
		return false, err
	}
	next := !cur
	setPath(obj, key, next)

	raw, err := json.Marshal(obj)
	if err != nil {
		return false, fmt.Errorf("failed to encode plugin config: %w", err)
	}
	if err := s.saveLocked(id, raw); err != nil {
		return false, err
	}
	return next, nil
}

// BoolAt reads the boolean at a dotted key in the plugin's config. A
// missing config, a missing key, or a non-boolean value all yield the
// fallback.
func (s *ConfigStore) BoolAt(id, key string, fallback bool) bool {
	if !IsSafeID(id) || key == "" {
		return fallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.loadObjectLocked(id)
	if err != nil {
		return fallback
	}
	val, ok, err := boolAt(obj, key)
	if err != nil || !ok {
		return fallback
	}
	return val
}

// saveLocked writes the payload to both locations, backup first. Callers
// hold s.mu and have validated the payload.
func (s *ConfigStore) saveLocked(id string, raw json.RawMessage) error {
	backup, err := s.loadBackup()
	if err != nil {
		return err
	}
	backup[id] = raw
	if err := config.SaveJSON(s.backupPath, backup); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}
	if err := config.WriteFileAtomic(s.primaryPath(id), raw, 0644); err != nil {
		return fmt.Errorf("failed to write plugin config: %w", err)
	}
	return nil
}

// loadObjectLocked reads the plugin's config as a generic object, falling
// back to the aggregate backup like Load does. No stored config at all is
// an empty object so a first toggle can create the file.
func (s *ConfigStore) loadObjectLocked(id string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(s.primaryPath(id))
	if err != nil || len(raw) > MaxConfigSize || !json.Valid(raw) {
		backup, berr := s.loadBackup()
		if berr != nil {
			return nil, berr
		}
		raw = backup[id]
	}
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}

	obj := make(map[string]interface{})
	if err := json.Unmarshal(raw, &obj); err != nil {
		// Valid JSON that is not an object has no keys to address.
		return nil, ErrConfigInvalid
	}
	return obj, nil
}

// boolAt walks a dotted key and returns the boolean at its end. ok is false
// when any path segment is absent; a non-boolean leaf or a non-object
// intermediate is ErrKeyNotBoolean.
func boolAt(obj map[string]interface{}, key string) (val, ok bool, err error) {
	parts := strings.Split(key, ".")
	cur := obj
	for i, part := range parts {
		v, present := cur[part]
		if !present {
			return false, false, nil
		}
		if i == len(parts)-1 {
			b, isBool := v.(bool)
			if !isBool {
				return false, false, ErrKeyNotBoolean
			}
			return b, true, nil
		}
		next, isMap := v.(map[string]interface{})
		if !isMap {
			return false, false, ErrKeyNotBoolean
		}
		cur = next
	}
	return false, false, nil
}

// setPath stores val at a dotted key, creating intermediate objects along
// the way. Callers check the existing value with boolAt first, so a
// non-object intermediate never gets clobbered here.
func setPath(obj map[string]interface{}, key string, val interface{}) {
	parts := strings.Split(key, ".")
	cur := obj
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = val
}

// restoreFromBackup looks the plugin up in the aggregate backup and, when
// present, heals the primary copy. A failed heal is logged but does not fail
// the load; the caller still gets the recovered payload.
func (s *ConfigStore) restoreFromBackup(id string) (json.RawMessage, error) {
	backup, err := s.loadBackup()
	if err != nil {
		return nil, err
	}
	raw, ok := backup[id]
	if !ok {
		return nil, ErrConfigNotFound
	}

	if err := config.WriteFileAtomic(s.primaryPath(id), raw, 0644); err != nil {
		s.log.Warn("failed to restore plugin config to primary location",
			zap.String("plugin", id),
			zap.Error(err))
	} else {
		s.log.Info("restored plugin config from backup", zap.String("plugin", id))
	}
	return raw, nil
}

// loadBackup reads the aggregate backup file. A missing file is an empty
// store; a file that does not parse is treated the same so one bad write
// can't wedge every plugin's config forever.
func (s *ConfigStore) loadBackup() (map[string]json.RawMessage, error) {
	raw, err := os.ReadFile(s.backupPath)
	if os.IsNotExist(err) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config backup: %w", err)
	}

	backup := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &backup); err != nil {
		s.log.Warn("config backup does not parse, starting over", zap.Error(err))
		return make(map[string]json.RawMessage), nil
	}
	return backup, nil
}

func (s *ConfigStore) primaryPath(id string) string {
	return filepath.Join(s.pluginsDir, id, ConfigFileName)
}
