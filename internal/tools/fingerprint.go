package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// Fingerprint hashes a tool's normalized name and the shape of its parameter
// schema. Descriptions, defaults and parameter order do not contribute.
func Fingerprint(name string, params []schema.Param) schema.Fingerprint {
	shape := make([]string, 0, len(params))
	for _, p := range params {
		shape = append(shape, NormalizeName(p.Name)+":"+string(p.Type)+":"+strconv.FormatBool(p.Required))
	}
	slices.Sort(shape)

	h := sha256.New()
	h.Write([]byte(NormalizeName(name)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(shape, ",")))
	return schema.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// FingerprintOf is Fingerprint applied to a descriptor.
func FingerprintOf(d schema.ToolDescriptor) schema.Fingerprint {
	return Fingerprint(d.Name, d.Params)
}
