package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"devicelink/internal/config"
	"devicelink/internal/errs"
)

type inputStamp struct {
	Path    string `json:"path"`
	Format  string `json:"format"`
	Sheet   string `json:"sheet"`
	Table   string `json:"table"`
	Size    int64  `json:"size"`
	ModTime int64  `json:"mod_time"`
}

// fingerprintInput captures everything that changes the stored output.
// Worker count, export and logging settings do not.
type fingerprintInput struct {
	Events   inputStamp      `json:"events"`
	Registry inputStamp      `json:"registry"`
	Columns  config.Columns  `json:"columns"`
	Matching config.Matching `json:"matching"`
	Fallback config.Fallback `json:"fallback"`
	Chunk    int             `json:"chunk_size"`
	Dates    [2][]string     `json:"dates"`
}

// Fingerprint hashes the inputs' identity and the settings that shape the
// output. Two runs with equal fingerprints produce identical output.
func Fingerprint(cfg *config.Config) (string, error) {
	events, err := stamp(cfg.Inputs.Events)
	if err != nil {
		return "", err
	}
	registry, err := stamp(cfg.Inputs.Registry)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(fingerprintInput{
		Events:   events,
		Registry: registry,
		Columns:  cfg.Columns,
		Matching: cfg.Matching,
		Fallback: cfg.Fallback,
		Chunk:    cfg.Pipeline.ChunkSize,
		Dates:    [2][]string{cfg.Pipeline.EventDateFields, cfg.Pipeline.RegistryDateFields},
	})
	if err != nil {
		return "", fmt.Errorf("encode fingerprint: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func stamp(in config.Input) (inputStamp, error) {
	info, err := os.Stat(in.Path)
	if err != nil {
		return inputStamp{}, errs.Wrap(errs.ErrNotFound, stagePrepare, "stat input", in.Path, err)
	}
	return inputStamp{
		Path:    in.Path,
		Format:  in.Format,
		Sheet:   in.Sheet,
		Table:   in.Table,
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
	}, nil
}
