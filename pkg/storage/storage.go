// Package storage manages the on-disk dataset layout: one directory per
// entity containing downloaded images and an info.json metadata file.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nekoscraper/pkg/models"
)

// EntityDirPrefix is the naming convention for per-entity directories.
const EntityDirPrefix = "cat_"

// InfoFileName is the per-entity metadata file.
const InfoFileName = "info.json"

// Manager handles dataset filesystem operations
type Manager struct {
	baseDir string
}

// NewManager creates a storage manager rooted at baseDir, creating the
// directory if needed.
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{baseDir: baseDir}, nil
}

// BaseDir returns the dataset root
func (m *Manager) BaseDir() string { return m.baseDir }

// EntityDir returns the directory for an entity, creating it if needed
func (m *Manager) EntityDir(entityID string) (string, error) {
	dir := filepath.Join(m.baseDir, EntityDirPrefix+entityID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create entity directory: %w", err)
	}
	return dir, nil
}

// ImagePath returns the destination path for the nth image of an entity
func (m *Manager) ImagePath(entityID string, index int, ext string) string {
	return filepath.Join(m.baseDir, EntityDirPrefix+entityID, fmt.Sprintf("image_%d%s", index, ext))
}

// HasImage reports whether the destination file already exists. Downloads
// are idempotent: an existing file is never re-fetched.
func (m *Manager) HasImage(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// SaveImage writes image bytes to path via a temp file and rename
func (m *Manager) SaveImage(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	tempPath := path + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save image data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// WriteEntityInfo writes the entity's metadata JSON into its directory
func (m *Manager) WriteEntityInfo(entity *models.Entity) error {
	dir, err := m.EntityDir(entity.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entity info: %w", err)
	}

	path := filepath.Join(dir, InfoFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write entity info: %w", err)
	}
	return nil
}

// ReadEntityInfo loads the metadata JSON from an entity directory
func ReadEntityInfo(dir string) (*models.Entity, error) {
	data, err := os.ReadFile(filepath.Join(dir, InfoFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read entity info: %w", err)
	}

	var entity models.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("failed to parse entity info: %w", err)
	}
	return &entity, nil
}

// EntityDirs returns the entity directories under root in lexicographic
// order. Cleaning passes depend on this ordering being stable.
func EntityDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), EntityDirPrefix) {
			dirs = append(dirs, filepath.Join(root, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ImageExtensions is the set of file extensions treated as images.
var ImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tiff": true,
}

// ImageFiles returns the image files directly under dir in lexicographic
// order.
func ImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ImageExtensions[ext] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// BackupTree copies the whole dataset tree to dst before a destructive
// pass. This is the sole recovery mechanism for removed files. An existing
// backup directory is left untouched.
func BackupTree(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("backup directory %s already exists", dst)
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = io.Copy(out, in)
		return err
	})
}
