package nekojirushi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSearchCond(t *testing.T) {
	cond := NewSearchCond(3)

	assert.Equal(t, "contents/", cond.Params)
	assert.Equal(t, "3", cond.P)
	assert.Equal(t, 2, cond.Page, "page field is zero-based")
	assert.Equal(t, 0, cond.RecruiterPref)
	assert.Empty(t, cond.Keyword)
}

func TestFosterListForm(t *testing.T) {
	form, err := FosterListForm(NewSearchCond(1))
	require.NoError(t, err)

	assert.Equal(t, "0", form.Get("spMode"))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(form.Get("search_cond")), &decoded))
	assert.Equal(t, "contents/", decoded["params"])
	assert.Equal(t, "1", decoded["p"])
	assert.Equal(t, float64(0), decoded["page"])

	// Empty filters must be present, not omitted
	for _, key := range []string{"target_pref_id", "sex", "keyword", "city_id"} {
		_, ok := decoded[key]
		assert.True(t, ok, "missing filter field %s", key)
	}
}

func TestListingURL(t *testing.T) {
	url := ListingURL("%s/foster/cat/?p=%d", "https://example.com", 7)
	assert.Equal(t, "https://example.com/foster/cat/?p=7", url)
}

func TestIntOrString(t *testing.T) {
	var resp FosterListResponse
	payload := `{
		"foster_list": [
			{"cat_id": 123456, "cat_name": "Tama", "url": "/foster/123456/", "image_1": "/img/a.jpg"},
			{"cat_id": "654321", "cat_name": "Mike", "url": "/foster/654321/", "image_1": "/img/b.jpg"}
		],
		"page": {"now": "2", "all_page": 40, "rows": "761"}
	}`
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))

	require.Len(t, resp.FosterList, 2)
	assert.Equal(t, "123456", resp.FosterList[0].CatID.String())
	assert.Equal(t, "654321", resp.FosterList[1].CatID.String())
	assert.Equal(t, 2, resp.Page.Now.Int())
	assert.Equal(t, 40, resp.Page.AllPage.Int())
	assert.Equal(t, 761, resp.Page.Rows.Int())
}
