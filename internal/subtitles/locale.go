package subtitles

import "strings"

// DefaultLabel is used for files whose language code is unknown.
const DefaultLabel = "Closed Captions"

var languageNames = map[string]string{
	"GER": "Deutsch", "DEU": "Deutsch",
	"NLD": "Nederlands", "DUT": "Nederlands",
	"NOR": "Norsk",
	"ENG": "English", "GBR": "English",
	"FRA": "Français", "FRE": "Français",
	"SPA": "Español", "ESP": "Español",
	"FIN": "Suomi",
	"RUS": "Русский",
	"POR": "Português",
	"RUM": "Română", "RON": "Română", "ROU": "Română",
	"TUR": "Türkçe",
	"POL": "Polski",
	"BUL": "Български",
	"HUN": "Magyar",
	"CZE": "Čeština", "CES": "Čeština",
	"CHI": "中文", "CMN": "中文", "YUE": "中文", "ZHS": "中文", "ZHT": "中文",
	"HRV": "Hrvatski",
	"HEB": "עברית",
	"AFR": "Afrikaans",
	"ELL": "Ελληνικά",
	"EST": "Eesti",
	"ITA": "Italiano",
	"SLV": "Slovenščina",
	"DAN": "Dansk", "DNK": "Dansk",
}

// LanguageName returns the display name for a three letter language code,
// or "" when the code is unknown.
func LanguageName(code string) string {
	return languageNames[strings.ToUpper(code)]
}
