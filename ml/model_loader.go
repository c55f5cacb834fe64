package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// LoadArtifact reads an artifact written by Artifact.Save. A missing file
// yields ErrArtifactNotFound; anything unreadable yields ErrSchemaMismatch.
func LoadArtifact(path string) (*Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, err
	}
	defer file.Close()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var artifact Artifact
	if err := json.NewDecoder(dec).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, path, err)
	}
	if artifact.Version > ArtifactVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSchemaMismatch, artifact.Version)
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &artifact, nil
}
