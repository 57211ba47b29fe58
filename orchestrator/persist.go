package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
)

type PersistBundle struct {
	Outcome
	Message string `json:"message"`
}

func mkSessionDir(outputsRoot string, o Outcome) (string, error) {
	sid := "session_" + o.CreatedAt.Format("20060102-150405") + "_" + o.ID[:8]
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// persist writes <outputs>/session_<ts>_<id>/result.json.
func persist(outputsRoot string, o Outcome) (string, error) {
	dir, err := mkSessionDir(outputsRoot, o)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "result.json")
	if err := writeJSON(path, PersistBundle{Outcome: o, Message: o.Message()}); err != nil {
		return "", err
	}
	return path, nil
}
