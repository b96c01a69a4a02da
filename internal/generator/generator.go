// Package generator synthesizes replacement values for detected entities.
// Fake values keep the shape of the category they replace so transformed
// documents stay readable, and date and ZIP handling follow the Safe Harbor
// rules: years survive, months and days do not, and ZIP codes keep at most
// their first three digits.
package generator

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"phivault/internal/core"
)

// Fake value producer names recorded alongside each mapping.
const (
	FakeTypeSynthetic   = "synthetic"
	FakeTypeDateHandler = "hipaa_date_handler"
	FakeTypeZIPHandler  = "hipaa_zip_handler"
	FakeTypeGeneric     = "generic"
)

// maxAttempts bounds the retry loop when candidates collide with fake
// values already mapped in the scope.
const maxAttempts = 16

// restrictedZIPPrefixes are the three-digit ZIP prefixes covering areas of
// 20,000 people or fewer; Safe Harbor requires these to become zeros.
var restrictedZIPPrefixes = map[string]struct{}{
	"036": {}, "692": {}, "878": {}, "059": {}, "790": {}, "879": {},
	"063": {}, "821": {}, "884": {}, "102": {}, "823": {}, "890": {},
	"203": {}, "830": {}, "893": {}, "556": {}, "831": {},
}

// Generator produces fake values. The zero value is not usable; construct
// with New. Safe for concurrent use.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// Generate returns a (fakeType, fakeValue) pair for the entity category.
// The original value informs shape-preserving categories (dates keep their
// year, ZIP codes their prefix) and is never echoed into the result. taken
// reports whether a candidate already maps to a different original in the
// scope; generation retries a bounded number of times before giving up with
// a GenerationExhausted error.
func (g *Generator) Generate(entityType core.EntityType, original string, taken func(string) bool) (string, string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		fakeType, candidate := g.synthesize(entityType, original, attempt)
		if taken == nil || !taken(candidate) {
			return fakeType, candidate, nil
		}
	}
	return "", "", core.NewGenerationExhaustedError(entityType)
}

func (g *Generator) synthesize(entityType core.EntityType, original string, attempt int) (string, string) {
	switch entityType {
	case core.EntityName:
		return FakeTypeSynthetic, pick(firstNames) + " " + pick(lastNames)
	case core.EntityEmail:
		return FakeTypeSynthetic, fmt.Sprintf("%s.%s%d@%s",
			strings.ToLower(pick(firstNames)), strings.ToLower(pick(lastNames)), rand.Intn(1000), pick(emailDomains))
	case core.EntityPhone:
		// 555-01XX block is reserved for fictional use.
		return FakeTypeSynthetic, fmt.Sprintf("%d-555-01%02d", 200+rand.Intn(800), rand.Intn(100))
	case core.EntitySSN:
		return FakeTypeSynthetic, fmt.Sprintf("%03d-%02d-%04d", 1+rand.Intn(899), 1+rand.Intn(99), 1+rand.Intn(9999))
	case core.EntityDate, core.EntityDOB:
		return FakeTypeDateHandler, fakeDate(original)
	case core.EntityCreditCard:
		return FakeTypeSynthetic, fmt.Sprintf("4%03d-%04d-%04d-%04d", rand.Intn(1000), rand.Intn(10000), rand.Intn(10000), rand.Intn(10000))
	case core.EntityZIP:
		return FakeTypeZIPHandler, fakeZIP(original)
	case core.EntityAddress:
		return FakeTypeSynthetic, fmt.Sprintf("%d %s %s, %s, %s %05d",
			1+rand.Intn(9999), pick(streetNames), pick(streetSuffixes), pick(cities), pick(states), 10000+rand.Intn(89999))
	case core.EntityMRN:
		return FakeTypeSynthetic, fmt.Sprintf("MRN-%08d", rand.Intn(100000000))
	case core.EntityInsuranceID:
		return FakeTypeSynthetic, fmt.Sprintf("%s%09d", pick(insurancePrefixes), rand.Intn(1000000000))
	case core.EntityLicense:
		return FakeTypeSynthetic, fmt.Sprintf("%s-%06d", randLetters(2), rand.Intn(1000000))
	case core.EntityVehicleID:
		return FakeTypeSynthetic, randAlnum(17)
	case core.EntityDeviceID:
		return FakeTypeSynthetic, fmt.Sprintf("SN-%010d", rand.Intn(10000000000))
	case core.EntityURL:
		return FakeTypeSynthetic, fmt.Sprintf("https://%s.example.com/%s", strings.ToLower(randLetters(6)), strings.ToLower(randLetters(8)))
	case core.EntityIPAddress:
		// 10/8 is private address space; fake IPs never route anywhere real.
		return FakeTypeSynthetic, fmt.Sprintf("10.%d.%d.%d", rand.Intn(256), rand.Intn(256), 1+rand.Intn(254))
	case core.EntityBiometric:
		return FakeTypeSynthetic, fmt.Sprintf("BIO-%012d", rand.Intn(1000000000000))
	case core.EntityTrialID:
		return FakeTypeSynthetic, fmt.Sprintf("NCT%08d", rand.Intn(100000000))
	case core.EntityEmployeeID:
		return FakeTypeSynthetic, fmt.Sprintf("EMP%06d", rand.Intn(1000000))
	default:
		// The bare marker is deterministic, so a second original of the same
		// unknown type collides with the scope's fake-value uniqueness; salted
		// retries keep generation viable.
		if attempt == 0 {
			return FakeTypeGeneric, fmt.Sprintf("[REDACTED-%s]", entityType)
		}
		return FakeTypeGeneric, fmt.Sprintf("[REDACTED-%s-%04d]", entityType, rand.Intn(10000))
	}
}

// yearExpr extracts a plausible four-digit year from a date string.
var yearExpr = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)

// fakeDate keeps the original year and randomizes month and day. A date
// whose year cannot be recovered gets a fully random recent date.
func fakeDate(original string) string {
	year := 0
	if m := yearExpr.FindString(original); m != "" {
		fmt.Sscanf(m, "%d", &year)
	}
	if year == 0 {
		year = time.Now().Year() - 18 - rand.Intn(72)
	}
	month := 1 + rand.Intn(12)
	day := 1 + rand.Intn(28)
	return fmt.Sprintf("%02d/%02d/%04d", month, day, year)
}

// fakeZIP keeps the first three digits unless they identify a small
// population area, in which case the prefix becomes zeros. The last two
// digits are always randomized.
func fakeZIP(original string) string {
	prefix := "000"
	if len(original) >= 3 && isDigits(original[:3]) {
		prefix = original[:3]
	}
	if _, restricted := restrictedZIPPrefixes[prefix]; restricted {
		prefix = "000"
	}
	return fmt.Sprintf("%s%02d", prefix, rand.Intn(100))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func pick(items []string) string {
	return items[rand.Intn(len(items))]
}

const upperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randAlnum(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(upperAlnum[rand.Intn(len(upperAlnum))])
	}
	return b.String()
}

func randLetters(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(upperAlpha[rand.Intn(len(upperAlpha))])
	}
	return b.String()
}
