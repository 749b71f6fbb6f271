package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iphone-scraper/models"
)

func TestCSVWriterReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output", "iphone_data.csv")

	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteRaw([]*models.RawListing{
		{Title: "iPhone 13, 128GB", PriceText: "459 000 Ft", Condition: strPtr("Kiváló"), Battery: strPtr("91%"), URL: "https://hasznaltalma.hu/iphone/iphone-13-128gb/1"},
		{Title: "iPhone SE", PriceText: "60 000 Ft", URL: "https://hasznaltalma.hu/iphone/iphone-se-64gb/2"},
	}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "title,price,condition,battery,url\n"))
	assert.Contains(t, string(data), `"iPhone 13, 128GB"`)

	listings, err := ReadRawCSVFile(path)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "iPhone 13, 128GB", listings[0].Title)
	assert.Equal(t, "459 000 Ft", listings[0].PriceText)
	assert.Equal(t, "Kiváló", *listings[0].Condition)
	assert.Equal(t, "91%", *listings[0].Battery)
	assert.Equal(t, "N/A", *listings[1].Condition)
	assert.Equal(t, "https://hasznaltalma.hu/iphone/iphone-se-64gb/2", listings[1].URL)
}

func TestReadRawCSVOriginalLayout(t *testing.T) {
	// Snapshot layout of the legacy scraper: model digits instead of title.
	in := "model,price,condition,battery,url\n" +
		"13,459000,N/A,N/A,https://hasznaltalma.hu/iphone/iphone-13-128gb/1\n"

	listings, err := ReadRawCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "", listings[0].Title)
	assert.Equal(t, "459000", listings[0].PriceText)
	assert.Equal(t, "N/A", *listings[0].Condition)
}

func TestReadRawCSVErrors(t *testing.T) {
	_, err := ReadRawCSV(strings.NewReader("title,condition\nx,y\n"))
	assert.ErrorContains(t, err, `missing column "price"`)

	listings, err := ReadRawCSV(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, listings)
}
