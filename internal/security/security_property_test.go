package security

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: sanitization is idempotent, so a symbol that already went
// through the CLI can safely pass through again at the config layer.
func TestProperty_SanitizeSymbolIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Sanitizing twice equals sanitizing once", prop.ForAll(
		func(raw string) bool {
			once := SanitizeSymbol(raw)
			twice := SanitizeSymbol(once)
			if once != twice {
				t.Logf("FAILED: %q sanitized to %q, then to %q", raw, once, twice)
				return false
			}
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// Property: masking never reveals more than the 8 edge bytes and never
// changes the length, whatever the credential looks like.
func TestProperty_MaskCredentialRevealsAtMostEdges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("At most 8 bytes survive masking", prop.ForAll(
		func(value string) bool {
			masked := MaskCredential(value)
			if len(masked) != len(value) {
				t.Logf("FAILED: length changed from %d to %d", len(value), len(masked))
				return false
			}
			revealed := 0
			for i := 0; i < len(masked); i++ {
				if masked[i] != '*' {
					revealed++
				}
			}
			if revealed > 8 {
				t.Logf("FAILED: %d bytes of %q revealed in %q", revealed, value, masked)
				return false
			}
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// Property: an API key placed in a URL query never survives redaction,
// whatever its exact value.
func TestProperty_RedactURLNeverLeaksKey(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Full key never appears in redacted URL", prop.ForAll(
		func(suffix string) bool {
			key := "k" + suffix + strings.Repeat("x", 20)
			raw := "https://api.twelvedata.com/time_series?symbol=FROTO&apikey=" + key
			out := RedactURL(raw)
			if strings.Contains(out, key) {
				t.Logf("FAILED: key %q survived in %q", key, out)
				return false
			}
			if !strings.Contains(out, "symbol=FROTO") {
				t.Logf("FAILED: symbol param lost in %q", out)
				return false
			}
			return true
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
