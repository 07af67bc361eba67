package cleaner

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	// Decoders for every format the scraper can produce.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"nekoscraper/pkg/config"
)

// Removal categories tallied in the report statistics.
const (
	CategoryFileSize  = "file_size_removals"
	CategoryPattern   = "pattern_removals"
	CategoryDimension = "dimension_removals"
	CategoryContent   = "content_removals"
	CategoryDuplicate = "duplicate_removals"
	CategoryCorrupted = "corrupted_removals"
)

// imageFile carries per-file state through the check chain. The pixel
// data is decoded at most once, on first demand.
type imageFile struct {
	path string
	size int64

	decoded   bool
	img       image.Image
	decodeErr error
}

func newImageFile(path string) (*imageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	return &imageFile{path: path, size: info.Size()}, nil
}

func (f *imageFile) decode() (image.Image, error) {
	if f.decoded {
		return f.img, f.decodeErr
	}
	f.decoded = true

	file, err := os.Open(f.path)
	if err != nil {
		f.decodeErr = err
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	f.img = img
	f.decodeErr = err
	return img, err
}

// Check is one independent removal criterion. Order matters only for
// short-circuiting cost: the first failing check wins and its category is
// tallied.
type Check interface {
	// Name returns the statistics category this check tallies into
	Name() string
	// Evaluate returns whether the file should be removed and why
	Evaluate(f *imageFile) (remove bool, reason string)
}

// sizeCheck rejects files outside the byte-size bounds or matching the
// exact-size denylist of known site-chrome assets.
type sizeCheck struct {
	profile config.CleaningProfile
}

func (c sizeCheck) Name() string { return CategoryFileSize }

func (c sizeCheck) Evaluate(f *imageFile) (bool, string) {
	if f.size < c.profile.MinFileSize {
		return true, fmt.Sprintf("file too small: %d bytes (min: %d)", f.size, c.profile.MinFileSize)
	}
	if f.size > c.profile.MaxFileSize {
		return true, fmt.Sprintf("file too large: %d bytes (max: %d)", f.size, c.profile.MaxFileSize)
	}
	for _, s := range c.profile.SuspiciousSizes {
		if f.size == s {
			return true, fmt.Sprintf("known problematic size: %d bytes", f.size)
		}
	}
	return false, ""
}

// filenameCheck rejects files whose name contains a denylisted substring
type filenameCheck struct {
	denylist []string
}

func (c filenameCheck) Name() string { return CategoryPattern }

func (c filenameCheck) Evaluate(f *imageFile) (bool, string) {
	name := strings.ToLower(filepath.Base(f.path))
	for _, pattern := range c.denylist {
		if strings.Contains(name, pattern) {
			return true, fmt.Sprintf("filename suspicious: %s", name)
		}
	}
	return false, ""
}

// dimensionCheck rejects images whose pixel dimensions or aspect ratio
// fall outside the profile bounds, plus mostly-transparent images and
// (when enabled) near-uniform flat images. The category is profile
// dependent: the lenient profile books these under dimension removals,
// the aggressive one under content removals.
type dimensionCheck struct {
	profile  config.CleaningProfile
	category string
}

func (c dimensionCheck) Name() string { return c.category }

func (c dimensionCheck) Evaluate(f *imageFile) (bool, string) {
	img, err := f.decode()
	if err != nil {
		// Tallied by the cleaner under corrupted_removals
		return true, fmt.Sprintf("cannot decode image: %v", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width < c.profile.MinWidth || height < c.profile.MinHeight {
		return true, fmt.Sprintf("too small: %dx%d (min: %dx%d)", width, height, c.profile.MinWidth, c.profile.MinHeight)
	}
	if width > c.profile.MaxWidth || height > c.profile.MaxHeight {
		return true, fmt.Sprintf("too large: %dx%d", width, height)
	}

	ratio := float64(width) / float64(height)
	if ratio < c.profile.MinAspectRatio || ratio > c.profile.MaxAspectRatio {
		return true, fmt.Sprintf("bad aspect ratio: %.2f", ratio)
	}

	if mostlyTransparent(img, c.profile.MostlyTransparentAlphaMax) {
		return true, "mostly transparent"
	}

	if c.profile.UniformColorFraction > 0 {
		if frac := dominantColorFraction(img); frac > c.profile.UniformColorFraction {
			return true, fmt.Sprintf("too uniform (%.0f%% one color, likely logo/icon)", frac*100)
		}
	}

	return false, ""
}

// sampleStride returns a step that keeps pixel sampling around 64x64
// positions regardless of image size.
func sampleStride(extent int) int {
	stride := extent / 64
	if stride < 1 {
		stride = 1
	}
	return stride
}

// mostlyTransparent reports whether the maximum alpha value across
// sampled pixels stays below the threshold.
func mostlyTransparent(img image.Image, alphaMax uint8) bool {
	if alphaMax == 0 {
		return false
	}

	bounds := img.Bounds()
	sx := sampleStride(bounds.Dx())
	sy := sampleStride(bounds.Dy())

	var maxAlpha uint8
	opaque := false
	for y := bounds.Min.Y; y < bounds.Max.Y; y += sy {
		for x := bounds.Min.X; x < bounds.Max.X; x += sx {
			_, _, _, a := img.At(x, y).RGBA()
			a8 := uint8(a >> 8)
			if a8 > maxAlpha {
				maxAlpha = a8
			}
			if maxAlpha >= alphaMax {
				opaque = true
				break
			}
		}
		if opaque {
			break
		}
	}
	return !opaque
}

// dominantColorFraction samples pixels and returns the fraction covered
// by the single most common color.
func dominantColorFraction(img image.Image) float64 {
	bounds := img.Bounds()
	sx := sampleStride(bounds.Dx())
	sy := sampleStride(bounds.Dy())

	counts := make(map[uint32]int)
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += sy {
		for x := bounds.Min.X; x < bounds.Max.X; x += sx {
			r, g, b, _ := img.At(x, y).RGBA()
			key := (r>>8)<<16 | (g>>8)<<8 | (b >> 8)
			counts[key]++
			total++
		}
	}
	if total == 0 {
		return 0
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	return float64(max) / float64(total)
}

// buildChecks assembles the check chain for a profile, cheap checks first
func buildChecks(profile config.CleaningProfile) []Check {
	dimensionCategory := CategoryDimension
	if profile.UniformColorFraction > 0 {
		dimensionCategory = CategoryContent
	}

	checks := []Check{sizeCheck{profile: profile}}
	if len(profile.FilenameDenylist) > 0 {
		checks = append(checks, filenameCheck{denylist: profile.FilenameDenylist})
	}
	checks = append(checks, dimensionCheck{profile: profile, category: dimensionCategory})
	return checks
}
