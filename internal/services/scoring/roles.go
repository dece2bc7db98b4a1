package scoring

import (
	"strings"
	"unicode"

	"github.com/ternarybob/deepstock/internal/models"
)

var executiveTokens = map[string]bool{
	"ceo": true, "cfo": true, "coo": true, "cto": true, "cio": true,
	"chairman": true, "chairwoman": true, "chairperson": true, "chair": true,
	"chief": true, "president": true,
}

var officerTokens = map[string]bool{
	"officer": true, "vp": true, "evp": true, "svp": true, "vice": true,
	"secretary": true, "treasurer": true, "controller": true, "gc": true,
}

var congressTokens = map[string]bool{
	"congress": true, "senator": true, "senate": true, "representative": true, "house": true,
}

// ClassifyRole maps a free-text title onto a role class. Titles are matched
// by word so "Director" never matches "cto". The first matching class wins in
// the order congress, executive, director, ten percent owner, officer.
func ClassifyRole(role string, source string) models.RoleClass {
	if source == models.SourceFinnhubCongress {
		return models.RoleCongress
	}

	lower := strings.ToLower(role)
	tokens := make(map[string]bool)
	for _, t := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '%'
	}) {
		tokens[t] = true
	}

	for t := range tokens {
		if congressTokens[t] {
			return models.RoleCongress
		}
	}

	vice := tokens["vice"] || tokens["evp"] || tokens["svp"] || tokens["vp"]
	for t := range tokens {
		if !executiveTokens[t] {
			continue
		}
		// "Vice President" is an officer, "Vice Chair" stays executive
		if t == "president" && vice {
			continue
		}
		return models.RoleExecutive
	}

	if tokens["director"] {
		return models.RoleDirector
	}

	if tokens["10%"] || strings.Contains(lower, "10 percent") || strings.Contains(lower, "ten percent") ||
		strings.Contains(lower, "beneficial owner") {
		return models.RoleTenPercentOwner
	}

	for t := range tokens {
		if officerTokens[t] {
			return models.RoleOfficer
		}
	}

	return models.RoleOther
}
