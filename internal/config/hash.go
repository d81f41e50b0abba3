package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name looked up next to a config file.
const ChecksumFile = ".checksums"

// ChecksumManifest maps file basenames to BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}
	return nil
}

// GenerateChecksum hashes configPath and writes (or updates) the .checksums
// manifest in its directory. It returns the manifest path.
func GenerateChecksum(configPath string) (string, error) {
	dir := filepath.Dir(configPath)
	manifest, err := LoadChecksums(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		manifest = &ChecksumManifest{Version: 1, Hashes: make(map[string]string)}
	}

	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", configPath, err)
	}
	manifest.Hashes[filepath.Base(configPath)] = hash
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checksums: %w", err)
	}

	checksumPath := filepath.Join(dir, ChecksumFile)
	// Restrictive permissions: the manifest holds expected hashes.
	if err := os.WriteFile(checksumPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write checksums: %w", err)
	}
	return checksumPath, nil
}

// LoadChecksums reads the .checksums file from a config directory. A missing
// manifest is returned as an os.IsNotExist error.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if err != nil {
		return nil, err
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	if manifest.Hashes == nil {
		manifest.Hashes = make(map[string]string)
	}
	return &manifest, nil
}

// verifyConfigHash checks path against the manifest in its directory.
// Without a manifest, verification is skipped.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	manifest, err := LoadChecksums(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	basename := filepath.Base(path)
	expected, ok := manifest.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: affinity config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expected); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: affinity config lock --config %s", path, err, path)
	}
	return nil
}
