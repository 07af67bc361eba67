package nekojirushi

// FosterListResponse is the JSON payload returned by the foster-list AJAX
// endpoint.
type FosterListResponse struct {
	FosterList []FosterCat `json:"foster_list"`
	Page       PageInfo    `json:"page"`
}

// FosterCat is one listing entry. Only the fields the scraper consumes are
// mapped; the rest of the payload is carried along by the raw entity page.
type FosterCat struct {
	CatID     IntOrString `json:"cat_id"`
	CatName   string      `json:"cat_name"`
	CatchCopy string      `json:"catch_copy"`
	URL       string      `json:"url"`
	Image1    string      `json:"image_1"`
}

// PageInfo describes the listing pagination state
type PageInfo struct {
	Now     IntOrString `json:"now"`
	AllPage IntOrString `json:"all_page"`
	Rows    IntOrString `json:"rows"`
}
