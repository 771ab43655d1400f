package udi_test

import (
	"testing"

	"devicelink/internal/udi"
)

func TestExtractDI(t *testing.T) {
	tests := []struct {
		name   string
		public string
		want   string
	}{
		{"empty", "", ""},
		{"blank", "   ", ""},
		{"gs1 human readable", "(01)00643169007222(17)141120(10)7654321D", "00643169007222"},
		{"gs1 di only", "(01)08717648200274", "08717648200274"},
		{"gs1 with symbology prefix", "]d2(01)08717648200274(21)A1", "08717648200274"},
		{"gs1 element string", "010064316900722217141120107654321D", "00643169007222"},
		{"gs1 short", "(01)123", ""},
		{"gs1 non digit", "(01)0064316900722X", ""},
		{"hibcc with secondary", "+H123PARTNO1/$$420020216LOT123", "H123PARTNO1"},
		{"hibcc without secondary drops check char", "+H123PARTNO1C", "H123PARTNO1"},
		{"hibcc lower case", "+h123partno1/$$420020216", "H123PARTNO1"},
		{"hibcc too short", "+H12/", ""},
		{"hibcc bad labeler", "+1123PARTNO1/$$4", ""},
		{"iccbba unsupported", "=/A9999XYZ100T0944", ""},
		{"garbage", "N/A", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := udi.ExtractDI(tc.public); got != tc.want {
				t.Fatalf("ExtractDI(%q) got %q want %q", tc.public, got, tc.want)
			}
		})
	}
}
