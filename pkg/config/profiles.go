package config

// CatClassID is the COCO class index for "cat", used by the detector pass.
const CatClassID = 16

// DefaultSelectors returns the selector chains collected from the known
// page layouts of the target site. All of these values are site-specific
// data, not logic; they were gathered empirically and can be overridden
// from the config file.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		EntityLinks: []string{
			"a.catlist_tit",
			".catlist a",
			".cat-item a",
			".cat-card a",
			"a[href*='/cat/']",
			".listing a",
		},
		Names: []string{
			"h1",
			".cat-name",
			".cat-title",
			".profile-title",
			".pet-name",
		},
		Images: []string{
			"img[src*='cat']",
			"img[src*='/img/foster/']",
			"img[src*='detail']",
			"div.catphoto img",
			".cat-photos img",
			".gallery img",
			".photo-gallery img",
			"img[src*='photo']",
		},
		Details: map[string][]string{
			"age":         {".age", ".cat-age", "[class*='age']", ".pet-age"},
			"gender":      {".gender", ".cat-gender", "[class*='gender']", ".pet-gender"},
			"breed":       {".breed", ".cat-breed", "[class*='breed']", ".pet-breed"},
			"color":       {".color", ".cat-color", "[class*='color']", ".pet-color"},
			"weight":      {".weight", ".cat-weight", "[class*='weight']", ".pet-weight"},
			"description": {".description", ".cat-description", ".profile-description", ".pet-description"},
		},
		ExcludeSubstrings: []string{
			"logo", "icon", "banner", "header", "nav", "button", "avatar", "spacer",
		},
		FallbackExtension: ".jpg",
	}
}

// StandardCleaningProfile mirrors the lenient cleaning criteria: generous
// bounds that only strip obvious site chrome and broken files.
func StandardCleaningProfile() CleaningProfile {
	return CleaningProfile{
		Name:        "standard",
		MinFileSize: 5000,
		MaxFileSize: 50 * 1024 * 1024,
		// Exact byte sizes of known site-chrome assets, collected
		// empirically. Brittle and site-specific; kept as data.
		SuspiciousSizes: []int64{
			43, 172, 281, 364, 883, 1300, 1500, 1900, 3400, 4000,
			4058, 4500, 5200, 5871, 6300, 6400, 6490, 6700, 6900, 7200,
		},
		FilenameDenylist: []string{
			"icon", "button", "banner", "logo", "avatar", "profile",
			"noimage", "placeholder", "default", "empty", "loading",
			"spacer", "pixel", "transparent", "blank", "sample",
		},
		MinWidth:                  100,
		MinHeight:                 100,
		MaxWidth:                  10000,
		MaxHeight:                 10000,
		MinAspectRatio:            0.1,
		MaxAspectRatio:            10.0,
		MostlyTransparentAlphaMax: 50,
		UniformColorFraction:      0,
		RemoveDuplicates:          false,
	}
}

// AggressiveCleaningProfile mirrors the strict criteria used to squeeze a
// training-quality dataset out of the raw scrape: higher size and
// dimension floors, a tight aspect-ratio band, uniform-color rejection and
// dataset-wide duplicate removal.
func AggressiveCleaningProfile() CleaningProfile {
	return CleaningProfile{
		Name:        "aggressive",
		MinFileSize: 10000,
		MaxFileSize: 20 * 1024 * 1024,
		SuspiciousSizes: []int64{
			5276, 6490, 5871, 4058, 4560, 3480, 1964,
			4634, 2713, 883, 1505, 1320, 2326, 4356,
		},
		FilenameDenylist:          nil, // size and content checks cover chrome here
		MinWidth:                  300,
		MinHeight:                 300,
		MaxWidth:                  8000,
		MaxHeight:                 8000,
		MinAspectRatio:            0.3,
		MaxAspectRatio:            3.0,
		MostlyTransparentAlphaMax: 50,
		UniformColorFraction:      0.8,
		RemoveDuplicates:          true,
	}
}
