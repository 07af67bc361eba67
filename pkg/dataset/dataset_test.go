package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nekoscraper/pkg/logger"
	"nekoscraper/pkg/models"
	"nekoscraper/pkg/storage"
)

func seedDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	store, err := storage.NewManager(root)
	require.NoError(t, err)

	// cat_100: info.json and two images
	require.NoError(t, store.WriteEntityInfo(&models.Entity{ID: "100", Name: "Tama"}))
	writeFile(t, filepath.Join(root, "cat_100", "image_1.jpg"), 2048)
	writeFile(t, filepath.Join(root, "cat_100", "image_2.png"), 1024)

	// cat_200: three images, no info.json
	writeFile(t, filepath.Join(root, "cat_200", "image_1.jpg"), 512)
	writeFile(t, filepath.Join(root, "cat_200", "image_2.jpg"), 512)
	writeFile(t, filepath.Join(root, "cat_200", "image_3.jpg"), 512)

	// cat_300: info.json only, images already cleaned away
	require.NoError(t, store.WriteEntityInfo(&models.Entity{ID: "300", Name: "Mi-ke!? the 3rd"}))

	return root
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

func TestCollect(t *testing.T) {
	root := seedDataset(t)

	stats, err := Collect(root)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalCats)
	assert.Equal(t, 5, stats.TotalImages)
	assert.Equal(t, 1, stats.CatsWithoutInfo)
	assert.Equal(t, 1, stats.EmptyCats)
	assert.InDelta(t, 4608.0/(1024*1024), stats.TotalMB, 0.0001)

	// Sorted by image count, largest first
	require.Len(t, stats.Entities, 3)
	assert.Equal(t, "200", stats.Entities[0].CatID)
	assert.Equal(t, 3, stats.Entities[0].ImageCount)
	assert.False(t, stats.Entities[0].HasInfo)
	assert.Equal(t, "100", stats.Entities[1].CatID)
	assert.Equal(t, "Tama", stats.Entities[1].Name)
	assert.Equal(t, "300", stats.Entities[2].CatID)
}

func TestStatsWrite(t *testing.T) {
	root := seedDataset(t)
	stats, err := Collect(root)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, stats.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_cats": 3`)
	assert.Contains(t, string(data), `"cat_id": "200"`)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Tama", "Tama"},
		{"Mi-ke!? the 3rd", "Mi_ke_the_3rd"},
		{"  spaces   everywhere  ", "spaces_everywhere"},
		{"タマちゃん", "タマちゃん"},
		{"みけ（仮名）", "みけ仮名"},
		{"ソラ＆リン", "ソラリン"},
		{"!?!?", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeName(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeNameTruncatesByRunes(t *testing.T) {
	long := strings.Repeat("ね", 60)
	got := sanitizeName(long)
	assert.Equal(t, strings.Repeat("ね", 50), got, "cap is 50 runes, not bytes")
}

func TestReorganizeKeepsJapaneseNames(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewManager(root)
	require.NoError(t, err)

	require.NoError(t, store.WriteEntityInfo(&models.Entity{ID: "400", Name: "タマちゃん"}))
	writeFile(t, filepath.Join(root, "cat_400", "image_1.jpg"), 128)

	// A name of nothing but punctuation falls back to the directory ID
	require.NoError(t, store.WriteEntityInfo(&models.Entity{ID: "500", Name: "!?!?"}))
	writeFile(t, filepath.Join(root, "cat_500", "image_1.jpg"), 128)

	output := filepath.Join(t.TempDir(), "out")
	index, err := Reorganize(root, output, logger.NewTestLogger())
	require.NoError(t, err)

	require.Len(t, index.Entities, 2)
	assert.Equal(t, filepath.Join(output, "cat_0001_タマちゃん"), index.Entities[0].NewDir)
	assert.Equal(t, filepath.Join(output, "cat_0002_cat_500"), index.Entities[1].NewDir)
	assert.FileExists(t, filepath.Join(output, "cat_0001_タマちゃん", "image_001.jpg"))
}

func TestReorganize(t *testing.T) {
	root := seedDataset(t)
	output := filepath.Join(t.TempDir(), "siamese_dataset")

	index, err := Reorganize(root, output, logger.NewTestLogger())
	require.NoError(t, err)

	assert.Equal(t, 3, index.TotalCats)
	assert.Equal(t, 5, index.TotalImages)
	require.Len(t, index.Entities, 3)

	// Entities are numbered in source directory order
	assert.Equal(t, filepath.Join(output, "cat_0001_Tama"), index.Entities[0].NewDir)
	assert.Equal(t, "Tama", index.Entities[0].CatName)
	assert.Equal(t, 2, index.Entities[0].ImagesCount)

	// The info-less entity falls back to its directory ID
	assert.Equal(t, filepath.Join(output, "cat_0002_cat_200"), index.Entities[1].NewDir)

	// Images are renumbered with their original extensions
	assert.FileExists(t, filepath.Join(output, "cat_0001_Tama", "image_001.jpg"))
	assert.FileExists(t, filepath.Join(output, "cat_0001_Tama", "image_002.png"))
	assert.FileExists(t, filepath.Join(output, "cat_0001_Tama", storage.InfoFileName))
	assert.NoFileExists(t, filepath.Join(output, "cat_0002_cat_200", storage.InfoFileName))

	assert.FileExists(t, filepath.Join(output, "index.json"))

	// Source tree untouched
	assert.FileExists(t, filepath.Join(root, "cat_100", "image_1.jpg"))
}

func TestReorganizeReplacesExistingOutput(t *testing.T) {
	root := seedDataset(t)
	output := filepath.Join(t.TempDir(), "siamese_dataset")

	writeFile(t, filepath.Join(output, "stale.txt"), 10)

	_, err := Reorganize(root, output, logger.NewTestLogger())
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(output, "stale.txt"))
}

func TestReorganizeFailsOnEmptyDataset(t *testing.T) {
	_, err := Reorganize(t.TempDir(), filepath.Join(t.TempDir(), "out"), logger.NewTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entity directories")
}
