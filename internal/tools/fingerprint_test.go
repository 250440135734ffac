package tools

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

func TestFingerprint_IgnoresOrderDescriptionsAndDefaults(t *testing.T) {
	a := Fingerprint("Currency_Converter", []schema.Param{
		{Name: "amount", Type: schema.TypeNumber, Required: true, Description: "how much"},
		{Name: "from", Type: schema.TypeString, Default: "USD"},
	})
	b := Fingerprint(" currency_converter", []schema.Param{
		{Name: "from", Type: schema.TypeString, Default: "EUR", Description: "source"},
		{Name: "amount", Type: schema.TypeNumber, Required: true},
	})
	require.Equal(t, a, b)
	require.Len(t, string(a), 64)
}

func TestFingerprint_ShapeChangesHash(t *testing.T) {
	base := []schema.Param{{Name: "amount", Type: schema.TypeNumber, Required: true}}
	fp := Fingerprint("convert", base)

	require.NotEqual(t, fp, Fingerprint("convert2", base))
	require.NotEqual(t, fp, Fingerprint("convert", []schema.Param{{Name: "amount", Type: schema.TypeString, Required: true}}))
	require.NotEqual(t, fp, Fingerprint("convert", []schema.Param{{Name: "amount", Type: schema.TypeNumber}}))
	require.NotEqual(t, fp, Fingerprint("convert", nil))
}
