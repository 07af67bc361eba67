package nekojirushi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// SearchCond is the nested filter object the foster-list endpoint expects,
// serialized as JSON text inside a form-encoded POST body. Empty strings
// mean "no filter".
type SearchCond struct {
	Params        string `json:"params"`
	P             string `json:"p"`
	Page          int    `json:"page"` // zero-based, unlike P
	TargetPrefID  string `json:"target_pref_id"`
	AgeLimit      string `json:"age_limit"`
	Sex           string `json:"sex"`
	Vaccine       string `json:"vaccine"`
	SpayAndNeuter string `json:"spay_and_neuter"`
	PatternNo     string `json:"pattern_no"`
	StatusID      string `json:"status_id"`
	CityID        string `json:"city_id"`
	CityName      string `json:"city_name"`
	Keyword       string `json:"keyword"`
	UserID        string `json:"user_id"`
	RecruiterPref int    `json:"recruiter_pref"`
}

// NewSearchCond builds the default search condition for a one-based page
// number.
func NewSearchCond(page int) SearchCond {
	return SearchCond{
		Params: "contents/",
		P:      strconv.Itoa(page),
		Page:   page - 1,
	}
}

// FosterListForm builds the form body for the foster-list endpoint
func FosterListForm(cond SearchCond) (url.Values, error) {
	condJSON, err := json.Marshal(cond)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search condition: %w", err)
	}

	form := url.Values{}
	form.Set("search_cond", string(condJSON))
	form.Set("spMode", "0")
	return form, nil
}

// ListingURL renders one of the configured HTML listing patterns for a
// page number. Patterns are printf-style with (base URL, page).
func ListingURL(pattern, baseURL string, page int) string {
	return fmt.Sprintf(pattern, baseURL, page)
}
