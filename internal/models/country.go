package models

import "strings"

// Country is keyed by its ISO 3166-1 alpha-2 code
type Country struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// NormalizeCountryCode trims and upper-cases a jurisdiction code and
// truncates it to two letters ("US-DE" becomes "US"). Blank and placeholder
// values normalize to "".
func NormalizeCountryCode(s string) string {
	if IsPlaceholder(s) {
		return ""
	}
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) > 2 {
		code = code[:2]
	}
	return code
}

// NewCountry builds a Country from a code, naming it from the ISO table.
// Unknown codes use the code as the name.
func NewCountry(code string) Country {
	code = NormalizeCountryCode(code)
	if info, ok := isoCountries[code]; ok {
		return Country{Code: code, Name: info.name, Region: info.region}
	}
	return Country{Code: code, Name: code}
}

type countryInfo struct {
	name   string
	region string
}

var isoCountries = map[string]countryInfo{
	"AE": {"United Arab Emirates", "Middle East"},
	"AR": {"Argentina", "Americas"},
	"AT": {"Austria", "Europe"},
	"AU": {"Australia", "Asia Pacific"},
	"BE": {"Belgium", "Europe"},
	"BM": {"Bermuda", "Americas"},
	"BR": {"Brazil", "Americas"},
	"CA": {"Canada", "Americas"},
	"CH": {"Switzerland", "Europe"},
	"CL": {"Chile", "Americas"},
	"CN": {"China", "Asia Pacific"},
	"CO": {"Colombia", "Americas"},
	"CY": {"Cyprus", "Europe"},
	"CZ": {"Czechia", "Europe"},
	"DE": {"Germany", "Europe"},
	"DK": {"Denmark", "Europe"},
	"EG": {"Egypt", "Middle East"},
	"ES": {"Spain", "Europe"},
	"FI": {"Finland", "Europe"},
	"FR": {"France", "Europe"},
	"GB": {"United Kingdom", "Europe"},
	"GR": {"Greece", "Europe"},
	"HK": {"Hong Kong", "Asia Pacific"},
	"HU": {"Hungary", "Europe"},
	"ID": {"Indonesia", "Asia Pacific"},
	"IE": {"Ireland", "Europe"},
	"IL": {"Israel", "Middle East"},
	"IN": {"India", "Asia Pacific"},
	"IT": {"Italy", "Europe"},
	"JE": {"Jersey", "Europe"},
	"JP": {"Japan", "Asia Pacific"},
	"KR": {"South Korea", "Asia Pacific"},
	"KY": {"Cayman Islands", "Americas"},
	"LU": {"Luxembourg", "Europe"},
	"MX": {"Mexico", "Americas"},
	"MY": {"Malaysia", "Asia Pacific"},
	"NL": {"Netherlands", "Europe"},
	"NO": {"Norway", "Europe"},
	"NZ": {"New Zealand", "Asia Pacific"},
	"PE": {"Peru", "Americas"},
	"PH": {"Philippines", "Asia Pacific"},
	"PL": {"Poland", "Europe"},
	"PT": {"Portugal", "Europe"},
	"QA": {"Qatar", "Middle East"},
	"SA": {"Saudi Arabia", "Middle East"},
	"SE": {"Sweden", "Europe"},
	"SG": {"Singapore", "Asia Pacific"},
	"TH": {"Thailand", "Asia Pacific"},
	"TR": {"Turkey", "Europe"},
	"TW": {"Taiwan", "Asia Pacific"},
	"US": {"United States", "Americas"},
	"VN": {"Vietnam", "Asia Pacific"},
	"ZA": {"South Africa", "Africa"},
}
