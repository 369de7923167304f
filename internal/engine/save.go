package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/narrative-engine/internal/errors"
	"github.com/louisbranch/narrative-engine/internal/id"
	"github.com/louisbranch/narrative-engine/internal/state/history"
	"github.com/louisbranch/narrative-engine/internal/state/migrate"
	"github.com/louisbranch/narrative-engine/internal/state/snapshot"
	"github.com/louisbranch/narrative-engine/internal/storage"
)

// SaveInfo summarizes one stored save record.
type SaveInfo struct {
	Key      string
	Slot     int
	Autosave bool
	ID       string
	Version  string
	Passage  string
	SavedAt  time.Time
}

func (e *Engine) slotKey(slot int) string {
	return fmt.Sprintf("%s.save.%d", e.cfg.Name, slot)
}

func (e *Engine) autosaveKey() string {
	return e.cfg.Name + ".autosave"
}

func (e *Engine) settingsKey() string {
	return e.cfg.Name + ".settings"
}

func (e *Engine) achievementsKey() string {
	return e.cfg.Name + ".achievements"
}

func (e *Engine) checkSlot(slot int) error {
	if slot < 0 || slot >= e.cfg.SlotCount {
		return apperrors.WithMetadata(apperrors.CodeSaveSlotOutOfRange,
			fmt.Sprintf("save slot %d out of range [0, %d)", slot, e.cfg.SlotCount),
			map[string]string{"slot": strconv.Itoa(slot)})
	}
	return nil
}

// SaveSlot writes the full history to a numbered save slot.
func (e *Engine) SaveSlot(ctx context.Context, slot int) error {
	if err := e.checkSlot(slot); err != nil {
		return err
	}
	return e.save(ctx, e.slotKey(slot))
}

// Autosave writes the full history to the dedicated autosave record.
func (e *Engine) Autosave(ctx context.Context) error {
	return e.save(ctx, e.autosaveKey())
}

func (e *Engine) save(ctx context.Context, key string) error {
	e.bus.Emit(EventSaveStarted, key)
	err := e.writeSave(ctx, key)
	e.bus.emitResult(EventSaveEnded, err)
	return err
}

func (e *Engine) writeSave(ctx context.Context, key string) error {
	saveID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate save id: %w", err)
	}
	payload, err := e.serializer.Serialize(e.encodeSave(saveID))
	if err != nil {
		return err
	}
	return e.store.Put(ctx, key, payload)
}

// LoadSlot restores the history from a numbered save slot.
func (e *Engine) LoadSlot(ctx context.Context, slot int) error {
	if err := e.checkSlot(slot); err != nil {
		return err
	}
	return e.load(ctx, e.slotKey(slot))
}

// LoadAutosave restores the history from the autosave record.
func (e *Engine) LoadAutosave(ctx context.Context) error {
	return e.load(ctx, e.autosaveKey())
}

// load replaces the live history with a stored one. Outdated saves run
// through the migration chain first; any failure along the way leaves
// the live history untouched.
func (e *Engine) load(ctx context.Context, key string) error {
	e.bus.Emit(EventLoadStarted, key)
	err := e.restoreSave(ctx, key)
	e.bus.emitResult(EventLoadEnded, err)
	return err
}

func (e *Engine) restoreSave(ctx context.Context, key string) error {
	raw, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.WithMetadata(apperrors.CodeSaveNotFound,
				fmt.Sprintf("no save stored under %q", key),
				map[string]string{"key": key})
		}
		return err
	}

	payload, err := e.decodeSave(raw)
	if err != nil {
		return err
	}

	compat, err := migrate.Classify(payload.version, e.cfg.Version, e.cfg.Compatibility)
	if err != nil {
		return err
	}

	old := e.hist.Current()
	switch compat {
	case migrate.Newer:
		return apperrors.WithMetadata(apperrors.CodeSaveVersionNewer,
			fmt.Sprintf("save version %s is newer than engine version %s", payload.version, e.cfg.Version),
			map[string]string{"save": payload.version, "engine": e.cfg.Version})
	case migrate.Compatible:
		if err := e.hist.Replace(payload.initial, payload.snaps, payload.index); err != nil {
			return err
		}
	case migrate.Outdated:
		if err := e.migrateSave(payload); err != nil {
			return err
		}
	}

	e.notify(old)
	return nil
}

// migrateSave folds the outdated history down to its state at the cursor,
// runs the migration chain over the variables, and installs the result as
// a fresh single-snapshot history. Intermediate rewind points do not
// survive migration; their shapes predate the running version.
func (e *Engine) migrateSave(payload savePayload) error {
	e.bus.Emit(EventMigrationStarted, payload.version)

	state, err := materialize(payload)
	var migrated snapshot.Vars
	if err == nil {
		migrated, err = e.migrator.Apply(state.Vars, payload.version, e.cfg.Version)
	}
	if err == nil {
		seed := state.Seed
		err = e.hist.Replace(snapshot.Snapshot{
			Vars:      migrated,
			PassageID: state.PassageID,
			Seed:      &seed,
		}, []snapshot.Snapshot{snapshot.New()}, 0)
	}

	e.bus.emitResult(EventMigrationEnded, err)
	return err
}

// materialize folds a decoded save without touching the live history.
func materialize(payload savePayload) (history.State, error) {
	tmp, err := history.NewStore(payload.initial, history.Config{}, nil)
	if err != nil {
		return history.State{}, err
	}
	if err := tmp.Replace(payload.initial, payload.snaps, payload.index); err != nil {
		return history.State{}, err
	}
	return tmp.Current(), nil
}

// DeleteSlot removes a numbered save record.
func (e *Engine) DeleteSlot(ctx context.Context, slot int) error {
	if err := e.checkSlot(slot); err != nil {
		return err
	}
	return e.delete(ctx, e.slotKey(slot))
}

// DeleteAutosave removes the autosave record.
func (e *Engine) DeleteAutosave(ctx context.Context) error {
	return e.delete(ctx, e.autosaveKey())
}

func (e *Engine) delete(ctx context.Context, key string) error {
	e.bus.Emit(EventDeleteStarted, key)
	err := e.deleteSave(ctx, key)
	e.bus.emitResult(EventDeleteEnded, err)
	return err
}

func (e *Engine) deleteSave(ctx context.Context, key string) error {
	if _, err := e.store.Get(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.WithMetadata(apperrors.CodeSaveNotFound,
				fmt.Sprintf("no save stored under %q", key),
				map[string]string{"key": key})
		}
		return err
	}
	return e.store.Delete(ctx, key)
}

// ListSaves enumerates the stored save records. Adapters implementing
// KeyLister are consulted directly; otherwise the known slot keys and the
// autosave key are probed. Records that no longer decode are skipped.
func (e *Engine) ListSaves(ctx context.Context) ([]SaveInfo, error) {
	keys, err := e.saveKeys(ctx)
	if err != nil {
		return nil, err
	}

	var infos []SaveInfo
	for _, key := range keys {
		raw, err := e.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		payload, err := e.decodeSave(raw)
		if err != nil {
			continue
		}
		info := SaveInfo{
			Key:     key,
			Slot:    -1,
			ID:      payload.id,
			Version: payload.version,
			Passage: payload.passage,
			SavedAt: payload.savedAt,
		}
		if key == e.autosaveKey() {
			info.Autosave = true
		} else if slot, ok := e.slotFromKey(key); ok {
			info.Slot = slot
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (e *Engine) saveKeys(ctx context.Context) ([]string, error) {
	if lister, ok := e.store.(storage.KeyLister); ok {
		all, err := lister.Keys(ctx)
		if err != nil {
			return nil, err
		}
		prefix := e.cfg.Name + ".save."
		var keys []string
		for _, key := range all {
			if strings.HasPrefix(key, prefix) || key == e.autosaveKey() {
				keys = append(keys, key)
			}
		}
		return keys, nil
	}

	keys := make([]string, 0, e.cfg.SlotCount+1)
	for slot := 0; slot < e.cfg.SlotCount; slot++ {
		keys = append(keys, e.slotKey(slot))
	}
	return append(keys, e.autosaveKey()), nil
}

func (e *Engine) slotFromKey(key string) (int, bool) {
	suffix, found := strings.CutPrefix(key, e.cfg.Name+".save.")
	if !found {
		return 0, false
	}
	slot, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return slot, true
}

// savePayload is the decoded form of one stored save record.
type savePayload struct {
	id      string
	version string
	passage string
	savedAt time.Time
	initial snapshot.Snapshot
	snaps   []snapshot.Snapshot
	index   int
}

// encodeSave captures the full history as a serializable graph. Seeds are
// written as decimal strings: int64 values past 2^53 lose precision as
// JSON numbers.
func (e *Engine) encodeSave(saveID string) map[string]any {
	initial := e.hist.Initial()
	snaps := e.hist.Snapshots()
	index := e.hist.Index()

	encoded := make([]any, len(snaps))
	for i, snap := range snaps {
		encoded[i] = encodeSnapshot(snap)
	}

	return map[string]any{
		"id":        saveID,
		"engine":    e.cfg.Name,
		"version":   e.cfg.Version,
		"passage":   e.hist.ResolvedPassage(index),
		"savedAt":   e.now(),
		"index":     index,
		"initial":   encodeSnapshot(initial),
		"snapshots": encoded,
	}
}

func encodeSnapshot(snap snapshot.Snapshot) map[string]any {
	out := map[string]any{
		"vars": map[string]any(snap.Vars),
	}
	if snap.PassageID != "" {
		out["passage"] = snap.PassageID
	}
	if snap.Seed != nil {
		out["seed"] = strconv.FormatInt(*snap.Seed, 10)
	}
	return out
}

func (e *Engine) decodeSave(raw string) (savePayload, error) {
	decoded, err := e.serializer.Deserialize(raw)
	if err != nil {
		return savePayload{}, err
	}
	record, ok := decoded.(map[string]any)
	if !ok {
		return savePayload{}, apperrors.New(apperrors.CodeSaveCorrupt, "save record is not an object")
	}

	payload := savePayload{
		id:      stringField(record, "id"),
		version: stringField(record, "version"),
		passage: stringField(record, "passage"),
	}
	if payload.version == "" {
		return savePayload{}, apperrors.New(apperrors.CodeSaveCorrupt, "save record is missing its version")
	}
	if savedAt, ok := record["savedAt"].(time.Time); ok {
		payload.savedAt = savedAt
	}

	index, ok := record["index"].(float64)
	if !ok {
		return savePayload{}, apperrors.New(apperrors.CodeSaveCorrupt, "save record is missing its cursor")
	}
	payload.index = int(index)

	initial, err := decodeSnapshot(record["initial"])
	if err != nil {
		return savePayload{}, err
	}
	if initial.Seed == nil {
		return savePayload{}, apperrors.New(apperrors.CodeSaveCorrupt, "save record is missing its initial seed")
	}
	payload.initial = initial

	rawSnaps, ok := record["snapshots"].([]any)
	if !ok || len(rawSnaps) == 0 {
		return savePayload{}, apperrors.New(apperrors.CodeSaveCorrupt, "save record holds no snapshots")
	}
	payload.snaps = make([]snapshot.Snapshot, len(rawSnaps))
	for i, item := range rawSnaps {
		snap, err := decodeSnapshot(item)
		if err != nil {
			return savePayload{}, err
		}
		payload.snaps[i] = snap
	}

	if payload.index < 0 || payload.index >= len(payload.snaps) {
		return savePayload{}, apperrors.New(apperrors.CodeSaveCorrupt,
			fmt.Sprintf("save cursor %d out of range [0, %d]", payload.index, len(payload.snaps)-1))
	}
	return payload, nil
}

func decodeSnapshot(value any) (snapshot.Snapshot, error) {
	record, ok := value.(map[string]any)
	if !ok {
		return snapshot.Snapshot{}, apperrors.New(apperrors.CodeSaveCorrupt, "snapshot record is not an object")
	}

	snap := snapshot.New()
	if vars, ok := record["vars"].(map[string]any); ok {
		snap.Vars = snapshot.Vars(vars)
	}
	snap.PassageID = stringField(record, "passage")
	if text, ok := record["seed"].(string); ok {
		seed, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return snapshot.Snapshot{}, apperrors.Wrap(apperrors.CodeSaveCorrupt,
				fmt.Sprintf("invalid seed value %q", text), err)
		}
		snap.Seed = &seed
	}
	return snap, nil
}

func stringField(record map[string]any, key string) string {
	value, _ := record[key].(string)
	return value
}

// Settings returns a copy of the persisted settings map.
func (e *Engine) Settings() map[string]any {
	return snapshot.Vars(e.settings).Clone()
}

// Setting reads one persisted setting.
func (e *Engine) Setting(key string) (any, bool) {
	value, ok := e.settings[key]
	return value, ok
}

// SetSetting persists one setting, then updates the in-memory copy.
func (e *Engine) SetSetting(ctx context.Context, key string, value any) error {
	next := snapshot.Vars(e.settings).Clone()
	if value == nil {
		delete(next, key)
	} else {
		next[key] = snapshot.CloneValue(value)
	}
	if err := e.saveRecord(ctx, e.settingsKey(), next); err != nil {
		return err
	}
	e.settings = next
	return nil
}

// Achievements returns a copy of the persisted achievements map.
func (e *Engine) Achievements() map[string]any {
	return snapshot.Vars(e.achievements).Clone()
}

// HasAchievement reports whether an achievement has been unlocked.
func (e *Engine) HasAchievement(name string) bool {
	_, ok := e.achievements[name]
	return ok
}

// UnlockAchievement records an achievement with its unlock time.
// Unlocking twice keeps the original timestamp.
func (e *Engine) UnlockAchievement(ctx context.Context, name string) error {
	if _, ok := e.achievements[name]; ok {
		return nil
	}
	next := snapshot.Vars(e.achievements).Clone()
	next[name] = e.now()
	if err := e.saveRecord(ctx, e.achievementsKey(), next); err != nil {
		return err
	}
	e.achievements = next
	return nil
}

func (e *Engine) saveRecord(ctx context.Context, key string, record map[string]any) error {
	payload, err := e.serializer.Serialize(record)
	if err != nil {
		return err
	}
	return e.store.Put(ctx, key, payload)
}

func (e *Engine) loadRecord(ctx context.Context, key string) (map[string]any, error) {
	raw, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	decoded, err := e.serializer.Deserialize(raw)
	if err != nil {
		return nil, err
	}
	record, ok := decoded.(map[string]any)
	if !ok {
		return nil, apperrors.New(apperrors.CodeSaveCorrupt, "stored record is not an object")
	}
	return record, nil
}

// Export bundles every stored record for this engine into one portable
// string: the save slots, the autosave, settings, and achievements.
func (e *Engine) Export(ctx context.Context) (string, error) {
	keys, err := e.saveKeys(ctx)
	if err != nil {
		return "", err
	}
	keys = append(keys, e.settingsKey(), e.achievementsKey())

	records := make(map[string]any)
	for _, key := range keys {
		raw, err := e.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return "", err
		}
		records[key] = raw
	}

	return e.serializer.Serialize(map[string]any{
		"engine":     e.cfg.Name,
		"version":    e.cfg.Version,
		"exportedAt": e.now(),
		"records":    records,
	})
}

// Import restores a bundle produced by Export, overwriting any records it
// names. The bundle must belong to the same engine. Settings and
// achievements are reloaded from storage afterwards.
func (e *Engine) Import(ctx context.Context, data string) error {
	decoded, err := e.serializer.Deserialize(data)
	if err != nil {
		return err
	}
	bundle, ok := decoded.(map[string]any)
	if !ok {
		return apperrors.New(apperrors.CodeSaveCorrupt, "export bundle is not an object")
	}
	if name := stringField(bundle, "engine"); name != e.cfg.Name {
		return apperrors.WithMetadata(apperrors.CodeSaveCorrupt,
			fmt.Sprintf("export bundle belongs to engine %q", name),
			map[string]string{"engine": name})
	}
	records, ok := bundle["records"].(map[string]any)
	if !ok {
		return apperrors.New(apperrors.CodeSaveCorrupt, "export bundle holds no records")
	}

	for key, value := range records {
		raw, ok := value.(string)
		if !ok {
			return apperrors.New(apperrors.CodeSaveCorrupt,
				fmt.Sprintf("export record %q is not a string payload", key))
		}
		if err := e.store.Put(ctx, key, raw); err != nil {
			return err
		}
	}

	if loaded, err := e.loadRecord(ctx, e.settingsKey()); err == nil {
		e.settings = loaded
	}
	if loaded, err := e.loadRecord(ctx, e.achievementsKey()); err == nil {
		e.achievements = loaded
	}
	return nil
}
