package speech

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"slidecast/internal/services"
)

// Gender selects the synthesized voice gender. Empty leaves the choice to
// the synthesis service.
type Gender string

const (
	GenderUnspecified Gender = ""
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
)

// ParseGender validates a user-supplied gender string.
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return GenderUnspecified, nil
	case "male":
		return GenderMale, nil
	case "female":
		return GenderFemale, nil
	}
	return GenderUnspecified, services.Wrap(services.ErrValidation, "speech", "voice",
		fmt.Sprintf("unknown gender %q (want male or female)", s), nil)
}

// ssmlGender maps to the synthesis service's enum representation.
func (g Gender) ssmlGender() string {
	switch g {
	case GenderMale:
		return "MALE"
	case GenderFemale:
		return "FEMALE"
	}
	return "SSML_VOICE_GENDER_UNSPECIFIED"
}

// Voice is the complete voice selection for one narration.
type Voice struct {
	// Language is a BCP-47 tag ("en-US", "es"). Canonicalized before use
	// so "EN-us" and "en-US" select the same voice and cache entry.
	Language string
	// Name pins an exact service voice ("en-US-Standard-C"); optional.
	Name string
	// Gender is honored when Name is unset.
	Gender Gender
}

// Normalize canonicalizes the voice selection, validating the language tag.
func (v Voice) Normalize() (Voice, error) {
	v.Language = strings.TrimSpace(v.Language)
	v.Name = strings.TrimSpace(v.Name)
	if v.Language == "" {
		v.Language = "en-US"
	}
	tag, err := language.Parse(v.Language)
	if err != nil {
		return Voice{}, services.Wrap(services.ErrValidation, "speech", "voice",
			fmt.Sprintf("invalid language tag %q", v.Language), err)
	}
	v.Language = tag.String()
	return v, nil
}

// FingerprintFields returns the normalized voice fields that participate in
// speech artifact keys.
func (v Voice) FingerprintFields() []string {
	fields := []string{"language=" + v.Language}
	if v.Name != "" {
		fields = append(fields, "name="+v.Name)
	}
	if v.Gender != GenderUnspecified {
		fields = append(fields, "gender="+string(v.Gender))
	}
	return fields
}
