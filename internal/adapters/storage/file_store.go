package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

const fileTimeLayout = "20060102T150405Z"

// FileStore implements ports.EvidenceStore on a local directory
//
// Each message is written as <UTC timestamp>_<envelope id>.eml holding the raw
// bytes, next to a .json file with the envelope metadata.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("evidence directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

type fileMetadata struct {
	Envelope domain.Envelope `json:"envelope"`
	Subject  string          `json:"subject"`
	Size     int             `json:"size_bytes"`
}

// SaveEvidence writes the raw message and its metadata
func (s *FileStore) SaveEvidence(ctx context.Context, evidence *domain.Evidence) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	base := s.baseName(evidence.Envelope)
	if err := writeFileAtomic(filepath.Join(s.dir, base+".eml"), evidence.Raw); err != nil {
		return fmt.Errorf("failed to write evidence %s: %w", evidence.Envelope.ID, err)
	}

	meta, err := json.MarshalIndent(fileMetadata{
		Envelope: evidence.Envelope,
		Subject:  evidence.Subject,
		Size:     len(evidence.Raw),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal evidence metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, base+".json"), meta); err != nil {
		return fmt.Errorf("failed to write evidence metadata %s: %w", evidence.Envelope.ID, err)
	}
	return nil
}

// GetEvidence finds a message by envelope ID
func (s *FileStore) GetEvidence(ctx context.Context, id uuid.UUID) (*domain.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, "*_"+id.String()+".eml"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	emlPath := matches[0]
	raw, err := os.ReadFile(emlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}

	evidence := &domain.Evidence{Raw: raw}
	metaPath := emlPath[:len(emlPath)-len(".eml")] + ".json"
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence metadata: %w", err)
	}

	var meta fileMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence metadata: %w", err)
	}
	evidence.Envelope = meta.Envelope
	evidence.Subject = meta.Subject

	return evidence, nil
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) baseName(env domain.Envelope) string {
	return env.ReceivedAt.UTC().Format(fileTimeLayout) + "_" + env.ID.String()
}

// writeFileAtomic writes to a temporary file and renames it into place so a
// reader never sees a partial message
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".evidence-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
