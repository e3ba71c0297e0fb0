// Package settings holds the user preferences the overlay edits and the
// tracker persists across runs.
package settings

// Settings are the persisted user preferences. Loading always starts from
// Default and decodes over it, so documents written by older builds keep
// sane values for fields they predate.
type Settings struct {
	CustomLogPath     string  `json:"customLogPath,omitempty"`
	AutoStart         bool    `json:"autoStart"`
	MinimizeToTray    bool    `json:"minimizeToTray"`
	Language          string  `json:"language"`
	APIURL            string  `json:"apiUrl"`
	LayoutOrientation string  `json:"layoutOrientation"`
	PanelDirection    string  `json:"panelDirection"`
	AuctionFeeRate    float64 `json:"auctionFeeRate"`
	Opacity           float64 `json:"opacity"`
	AlwaysOnTop       bool    `json:"alwaysOnTop"`
}

func Default() Settings {
	return Settings{
		AutoStart:         false,
		MinimizeToTray:    true,
		Language:          "ru",
		APIURL:            "https://www.kripika.com",
		LayoutOrientation: "vertical",
		PanelDirection:    "right",
		AuctionFeeRate:    0.125,
		Opacity:           1.0,
		AlwaysOnTop:       true,
	}
}
