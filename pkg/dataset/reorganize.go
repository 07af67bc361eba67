package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"nekoscraper/pkg/logger"
	"nekoscraper/pkg/storage"
)

var (
	// Names on the site are mostly Japanese, so the character class must
	// cover all Unicode letters and digits, not just ASCII word characters.
	nonWordPattern    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	separatorPattern  = regexp.MustCompile(`[-\s]+`)
	maxCleanedNameLen = 50
)

// sanitizeName turns an entity name into a filesystem-safe directory
// component: special characters removed, whitespace runs collapsed to
// underscores, length capped by rune count. Returns "" when nothing
// usable remains; the caller falls back to the entity ID.
func sanitizeName(name string) string {
	cleaned := nonWordPattern.ReplaceAllString(name, "")
	cleaned = separatorPattern.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, "_")
	if runes := []rune(cleaned); len(runes) > maxCleanedNameLen {
		cleaned = string(runes[:maxCleanedNameLen])
	}
	return cleaned
}

// ReorganizedEntity records one entity's move in the index
type ReorganizedEntity struct {
	OriginalDir string `json:"original_dir"`
	NewDir      string `json:"new_dir"`
	CatName     string `json:"cat_name"`
	ImagesCount int    `json:"images_count"`
}

// Index is the JSON document written next to the reorganized dataset
type Index struct {
	CreatedAt   time.Time           `json:"created_at"`
	SourcePath  string              `json:"source_path"`
	OutputPath  string              `json:"output_path"`
	TotalCats   int                 `json:"total_cats"`
	TotalImages int                 `json:"total_images"`
	Entities    []ReorganizedEntity `json:"entities"`
}

// Reorganize copies the dataset into a uniform layout for training:
// sequentially numbered "cat_NNNN_<name>" directories with images renamed
// "image_NNN.<ext>". The source tree is left untouched; an existing output
// directory is replaced.
func Reorganize(root, output string, log logger.Logger) (*Index, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	dirs, err := storage.EntityDirs(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no entity directories under %s", root)
	}

	if err := os.RemoveAll(output); err != nil {
		return nil, fmt.Errorf("failed to clear output directory: %w", err)
	}
	if err := os.MkdirAll(output, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	index := &Index{
		CreatedAt:  time.Now().UTC(),
		SourcePath: root,
		OutputPath: output,
	}

	counter := 1
	for _, dir := range dirs {
		entry, err := reorganizeEntity(dir, output, counter, log)
		if err != nil {
			log.WithError(err).WithField("dir", dir).Error("failed to reorganize entity")
			continue
		}
		if entry == nil {
			continue
		}
		counter++
		index.TotalCats++
		index.TotalImages += entry.ImagesCount
		index.Entities = append(index.Entities, *entry)
	}

	indexPath := filepath.Join(output, "index.json")
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := os.WriteFile(indexPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}

	log.InfoWithFields("reorganization complete", map[string]interface{}{
		"total_cats":   index.TotalCats,
		"total_images": index.TotalImages,
		"output":       output,
	})
	return index, nil
}

// reorganizeEntity copies one entity directory into the uniform layout.
// Entities without an info.json fall back to their directory ID for naming.
func reorganizeEntity(dir, output string, seq int, log logger.Logger) (*ReorganizedEntity, error) {
	catID := strings.TrimPrefix(filepath.Base(dir), storage.EntityDirPrefix)

	name := ""
	hasInfo := false
	if info, err := storage.ReadEntityInfo(dir); err == nil {
		hasInfo = true
		name = info.Name
	}
	if name == "" {
		name = storage.EntityDirPrefix + catID
	}

	cleaned := sanitizeName(name)
	if cleaned == "" {
		cleaned = storage.EntityDirPrefix + catID
	}
	newDirName := fmt.Sprintf("cat_%04d_%s", seq, cleaned)
	newDir := filepath.Join(output, newDirName)
	if err := os.MkdirAll(newDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if hasInfo {
		if err := copyFile(filepath.Join(dir, storage.InfoFileName), filepath.Join(newDir, storage.InfoFileName)); err != nil {
			return nil, err
		}
	}

	files, err := storage.ImageFiles(dir)
	if err != nil {
		return nil, err
	}

	copied := 0
	for _, src := range files {
		ext := strings.ToLower(filepath.Ext(src))
		dst := filepath.Join(newDir, fmt.Sprintf("image_%03d%s", copied+1, ext))
		if err := copyFile(src, dst); err != nil {
			log.WithError(err).WithField("path", src).Warn("failed to copy image")
			continue
		}
		copied++
	}

	log.DebugWithFields("entity reorganized", map[string]interface{}{
		"from":   filepath.Base(dir),
		"to":     newDirName,
		"images": copied,
	})

	return &ReorganizedEntity{
		OriginalDir: dir,
		NewDir:      newDir,
		CatName:     name,
		ImagesCount: copied,
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}
