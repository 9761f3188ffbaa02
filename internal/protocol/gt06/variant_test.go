package gt06

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectVariant(t *testing.T) {
	cases := []struct {
		bodyLen int
		want    Variant
	}{
		{7, VariantUnknown},
		{8, VariantV5},
		{10, VariantV5},
		{12, VariantV5},
		{13, VariantSK05},
		{16, VariantSK05},
		{17, VariantStandard},
		{32, VariantStandard},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectVariant(tc.bodyLen), "body length %d", tc.bodyLen)
	}
}

func TestStatusIsPrimaryTraffic(t *testing.T) {
	assert.True(t, VariantV5.StatusIsPrimaryTraffic())
	assert.False(t, VariantSK05.StatusIsPrimaryTraffic())
	assert.False(t, VariantStandard.StatusIsPrimaryTraffic())
}
