package cleaner

import (
	"runtime"

	"nekoscraper/internal/hasher"
	"nekoscraper/pkg/storage"
)

// duplicate pairs a redundant file with the path it duplicates
type duplicate struct {
	path     string
	original string
}

// findDuplicates digests every image in the dataset and returns each file
// whose content hash was already seen. Hashing runs on a worker pool, but
// keep-or-remove decisions are made over paths in lexicographic order so
// the first occurrence always wins and results are stable across runs.
func (c *Cleaner) findDuplicates(root string) ([]duplicate, error) {
	dirs, err := storage.EntityDirs(root)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, dir := range dirs {
		files, err := storage.ImageFiles(dir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, files...)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	pool := hasher.NewPool(runtime.NumCPU(), c.logger)
	pool.Start()

	go func() {
		for _, path := range paths {
			if err := pool.Submit(hasher.Job{Path: path}); err != nil {
				return
			}
		}
		pool.Stop()
	}()

	digests := make(map[string]string, len(paths))
	for result := range pool.Results() {
		if result.Err != nil {
			c.logger.WithError(result.Err).WithField("path", result.Path).Warn("skipping unhashable file")
			continue
		}
		digests[result.Path] = result.Digest
	}

	seen := make(map[string]string)
	var dups []duplicate
	for _, path := range paths {
		digest, ok := digests[path]
		if !ok {
			continue
		}
		if original, found := seen[digest]; found {
			dups = append(dups, duplicate{path: path, original: original})
			continue
		}
		seen[digest] = path
	}

	return dups, nil
}
