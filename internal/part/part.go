// Package part holds the data model shared by the engine client, the
// resolver and the renderer: brands, series detection, substitutions and
// batch results.
package part

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Brand identifies a component manufacturer the engine can resolve.
type Brand string

// Known brands offered for selection.
const (
	BrandYageo Brand = "yageo"
)

// SupportedBrands returns the brands offered for selection in display order.
func SupportedBrands() []Brand {
	return []Brand{BrandYageo}
}

// Supported reports whether b is one of the brands offered for selection.
// Unsupported brands are still sent to the engine, which decides what to do with them.
func (b Brand) Supported() bool {
	for _, s := range SupportedBrands() {
		if b == s {
			return true
		}
	}
	return false
}

// DisplayName returns a human-readable name for the brand.
func (b Brand) DisplayName() string {
	switch b {
	case BrandYageo:
		return "Yageo"
	default:
		return string(b)
	}
}

// ParseBrand normalizes user input into a Brand. Matching is case-insensitive.
func ParseBrand(s string) Brand {
	return Brand(strings.ToLower(strings.TrimSpace(s)))
}

// SubstitutionType classifies how a candidate relates to the queried part.
type SubstitutionType string

// Substitution types understood by presentation.
const (
	TypeOriginal             SubstitutionType = "Original"
	TypePackagingSubstitute  SubstitutionType = "Packaging Substitute"
	TypeFunctionalSubstitute SubstitutionType = "Functional Substitute"
)

// Known reports whether t belongs to the closed set of presentation types.
// The engine may send other values (e.g. "Electrical Equivalent"); those are
// kept verbatim and displayed with the functional style.
func (t SubstitutionType) Known() bool {
	switch t {
	case TypeOriginal, TypePackagingSubstitute, TypeFunctionalSubstitute:
		return true
	}
	return false
}

// Style names the display style for a substitution type.
type Style string

// Display styles.
const (
	StyleOriginal   Style = "original"
	StylePackaging  Style = "packaging"
	StyleFunctional Style = "functional"
)

// Style returns the display style for t.
func (t SubstitutionType) Style() Style {
	switch t {
	case TypeOriginal:
		return StyleOriginal
	case TypePackagingSubstitute:
		return StylePackaging
	default:
		return StyleFunctional
	}
}

// Substitution is one recommended replacement part.
type Substitution struct {
	PartNumber string           `json:"part_number"`
	Type       SubstitutionType `json:"type"`
	Details    string           `json:"details"`
}

// UnknownSeries is the wire sentinel the engine uses when it cannot detect a series.
const UnknownSeries = "UNKNOWN"

// Detection is the outcome of series detection for one MPN: either a resolved
// series or undetected. The zero value is neither and reports IsValid false.
type Detection struct {
	series string
	state  detectionState
}

type detectionState uint8

const (
	detectionUnset detectionState = iota
	detectionResolved
	detectionUndetected
)

// Resolved returns a Detection carrying the given series.
// An empty or sentinel series yields Undetected.
func Resolved(series string) Detection {
	if series == "" || series == UnknownSeries {
		return Undetected()
	}
	return Detection{series: series, state: detectionResolved}
}

// Undetected returns a Detection for an MPN whose series could not be determined.
func Undetected() Detection {
	return Detection{state: detectionUndetected}
}

// IsValid reports whether d was produced by Resolved or Undetected.
func (d Detection) IsValid() bool { return d.state != detectionUnset }

// IsDetected reports whether a series was resolved.
func (d Detection) IsDetected() bool { return d.state == detectionResolved }

// Series returns the resolved series and true, or "" and false.
func (d Detection) Series() (string, bool) {
	if d.state != detectionResolved {
		return "", false
	}
	return d.series, true
}

// String returns the series, or the wire sentinel when undetected.
func (d Detection) String() string {
	switch d.state {
	case detectionResolved:
		return d.series
	case detectionUndetected:
		return UnknownSeries
	default:
		return ""
	}
}

// MarshalJSON writes the wire form of the detection.
func (d Detection) MarshalJSON() ([]byte, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("marshaling detection: value not initialized")
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON reads the wire form. A null or empty series is undetected.
func (d *Detection) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Undetected()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding series: %w", err)
	}
	*d = Resolved(strings.TrimSpace(s))
	return nil
}

// MpnResult is the resolution outcome for one submitted MPN.
type MpnResult struct {
	MPN           string         `json:"mpn"`
	Detection     Detection      `json:"series"`
	Substitutions []Substitution `json:"substitutions"`
}

// UnmarshalJSON decodes a result, treating a missing series as undetected and
// missing substitutions as an empty list.
func (r *MpnResult) UnmarshalJSON(data []byte) error {
	type alias MpnResult
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Detection.IsValid() {
		raw.Detection = Undetected()
	}
	if raw.Substitutions == nil {
		raw.Substitutions = []Substitution{}
	}
	*r = MpnResult(raw)
	return nil
}

// Originals returns the substitutions typed Original.
func (r MpnResult) Originals() []Substitution {
	var out []Substitution
	for _, s := range r.Substitutions {
		if s.Type == TypeOriginal {
			out = append(out, s)
		}
	}
	return out
}

// BatchResult is the engine's response to a batch lookup.
type BatchResult struct {
	Brand   Brand       `json:"brand"`
	Total   int         `json:"total"`
	Results []MpnResult `json:"results"`
}

// UnmarshalJSON decodes a batch result; a missing or null results field is empty.
func (b *BatchResult) UnmarshalJSON(data []byte) error {
	type alias BatchResult
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Results == nil {
		raw.Results = []MpnResult{}
	}
	*b = BatchResult(raw)
	return nil
}

// Len returns the number of result groups. Total is informational only.
func (b *BatchResult) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Results)
}

// Undetected counts results whose series could not be determined.
func (b *BatchResult) Undetected() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, r := range b.Results {
		if !r.Detection.IsDetected() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers cannot mutate held state.
func (b *BatchResult) Clone() *BatchResult {
	if b == nil {
		return nil
	}
	out := &BatchResult{Brand: b.Brand, Total: b.Total, Results: make([]MpnResult, len(b.Results))}
	for i, r := range b.Results {
		subs := make([]Substitution, len(r.Substitutions))
		copy(subs, r.Substitutions)
		out.Results[i] = MpnResult{MPN: r.MPN, Detection: r.Detection, Substitutions: subs}
	}
	return out
}
