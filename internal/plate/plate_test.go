package plate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		plate   string
		country Country
		valid   bool
	}{
		{"ABC1D23", CountryBrazil, true},
		{"abc1d23", CountryBrazil, true},
		{"AB123CD", CountryArgentina, true},
		{"ABCD123", CountryParaguay, true},
		{"ABC1234", CountryUruguay, true},
		{"garbage", CountryUnknown, false},
		{"12AB345", CountryUnknown, false},
		{"ABC1D2", CountryUnknown, false},
		{"ABC1D234", CountryUnknown, false},
		{"", CountryUnknown, false},
		{"ABC 1D2", CountryUnknown, false},
		{"ÁBC1D23", CountryUnknown, false},
	}

	var c Mercosul
	for _, tc := range cases {
		country, ok := c.Classify(tc.plate)
		require.Equal(t, tc.valid, ok, tc.plate)
		require.Equal(t, tc.country, country, tc.plate)
	}
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "ABC1D23", Normalize("ABC 1D23"))
	require.Equal(t, "ABC1D23", Normalize(" ABC\t1D23\n"))
	require.Equal(t, "", Normalize("   "))
	require.Equal(t, "ERR003", Normalize("ERR003"))
}

func TestCountryString(t *testing.T) {
	require.Equal(t, "Brazil", CountryBrazil.String())
	require.Equal(t, "Uruguay", CountryUruguay.String())
	require.Equal(t, "Unknown", Country(42).String())
}
