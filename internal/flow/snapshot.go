package flow

import (
	"bytes"
	"encoding/json"
	"time"
)

// Snapshot is the persisted form of a Manager.
type Snapshot struct {
	CurrentState State          `json:"currentState"`
	Context      map[string]any `json:"context"`
	History      []HistoryEntry `json:"history"`
	IsCompleted  bool           `json:"isCompleted"`
	IsCancelled  bool           `json:"isCancelled"`
	Timestamp    string         `json:"timestamp,omitempty"`
}

// Serialize captures the full manager state. The timestamp records when the
// snapshot was taken and is not restored.
func (m *Manager) Serialize() Snapshot {
	return Snapshot{
		CurrentState: m.state,
		Context:      cloneContext(m.context),
		History:      m.History(),
		IsCompleted:  m.completed,
		IsCancelled:  m.cancelled,
		Timestamp:    m.now().UTC().Format(time.RFC3339Nano),
	}
}

// SerializeJSON encodes Serialize as JSON.
func (m *Manager) SerializeJSON() ([]byte, error) {
	return json.Marshal(m.Serialize())
}

var requiredSnapshotFields = []string{"currentState", "context", "history"}

// Deserialize replaces the manager state with the JSON snapshot in raw.
// On error the manager is left unchanged. Context values come back as JSON
// decodes them: numbers become float64, nested objects map[string]any. Use
// Restore with the Serialize result to keep Go types exact.
func (m *Manager) Deserialize(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return newError(ErrInvalidSerializationData, "Invalid serialization data: expected a JSON object")
	}
	for _, name := range requiredSnapshotFields {
		value, ok := fields[name]
		if !ok || isJSONNull(value) {
			return newError(ErrInvalidSerializationData, "Missing required field: %s", name)
		}
	}

	var snap Snapshot
	var state string
	if err := json.Unmarshal(fields["currentState"], &state); err != nil {
		return newError(ErrInvalidSerializationData, "Invalid serialization data: currentState must be a string")
	}
	snap.CurrentState = State(state)
	if !snap.CurrentState.Valid() {
		return newError(ErrInvalidState, "Invalid state: %s", state)
	}
	if err := json.Unmarshal(fields["context"], &snap.Context); err != nil || snap.Context == nil {
		return newError(ErrInvalidSerializationData, "Invalid serialization data: context must be an object")
	}
	if err := decodeHistory(fields["history"], &snap.History); err != nil {
		return err
	}
	// Absent flags follow the state; present ones must agree with it.
	snap.IsCompleted = snap.CurrentState == StateDone
	snap.IsCancelled = snap.CurrentState == StateCancelled
	flags := map[string]*bool{"isCompleted": &snap.IsCompleted, "isCancelled": &snap.IsCancelled}
	for name, dst := range flags {
		value, ok := fields[name]
		if !ok || isJSONNull(value) {
			continue
		}
		if err := json.Unmarshal(value, dst); err != nil {
			return newError(ErrInvalidSerializationData, "Invalid serialization data: %s must be a boolean", name)
		}
	}
	return m.Restore(snap)
}

func decodeHistory(raw json.RawMessage, dst *[]HistoryEntry) error {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return newError(ErrInvalidSerializationData, "Invalid serialization data: history must be an array of objects")
	}
	out := make([]HistoryEntry, 0, len(entries))
	for i, fields := range entries {
		var entry HistoryEntry
		var state string
		if err := json.Unmarshal(fields["state"], &state); err != nil {
			return newError(ErrInvalidSerializationData, "Invalid serialization data: history[%d].state must be a string", i)
		}
		entry.State = State(state)
		if !entry.State.Valid() {
			return newError(ErrInvalidState, "Invalid state in history: %s", state)
		}
		if value, ok := fields["context"]; ok && !isJSONNull(value) {
			if err := json.Unmarshal(value, &entry.Context); err != nil {
				return newError(ErrInvalidSerializationData, "Invalid serialization data: history[%d].context must be an object", i)
			}
		}
		if entry.Context == nil {
			entry.Context = map[string]any{}
		}
		if value, ok := fields["timestamp"]; ok && !isJSONNull(value) {
			if err := json.Unmarshal(value, &entry.Timestamp); err != nil {
				return newError(ErrInvalidSerializationData, "Invalid serialization data: history[%d].timestamp must be RFC 3339", i)
			}
		}
		out = append(out, entry)
	}
	*dst = out
	return nil
}

// Restore applies an already decoded snapshot. Flags must agree with the
// state; history longer than the cap keeps only the newest entries.
func (m *Manager) Restore(snap Snapshot) error {
	if !snap.CurrentState.Valid() {
		return newError(ErrInvalidState, "Invalid state: %s", snap.CurrentState)
	}
	if snap.IsCompleted != (snap.CurrentState == StateDone) || snap.IsCancelled != (snap.CurrentState == StateCancelled) {
		return newError(ErrInvalidSerializationData, "Invalid serialization data: flags disagree with state %s", snap.CurrentState)
	}
	history := make([]HistoryEntry, 0, len(snap.History))
	for _, entry := range snap.History {
		if !entry.State.Valid() {
			return newError(ErrInvalidState, "Invalid state in history: %s", entry.State)
		}
		history = append(history, entry.clone())
	}
	if over := len(history) - m.maxHistory; over > 0 {
		history = history[over:]
	}
	m.state = snap.CurrentState
	m.context = cloneContext(snap.Context)
	m.history = history
	m.syncFlags()
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
