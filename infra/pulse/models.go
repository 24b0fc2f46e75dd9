package pulse

type appliance struct {
	Assignment  string  `json:"assignment"`
	DisplayName string  `json:"display_name"`
	Power       float64 `json:"power"`
}

type weather struct {
	DateTime    string  `json:"datetime"`
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
	Temperature float64 `json:"temperature"`
	Daytime     bool    `json:"daytime"`
}

// Summary is the live power summary of a site, in kW.
type Summary struct {
	Grid                float64     `json:"grid"`
	Consumption         float64     `json:"consumption"`
	Solar               float64     `json:"solar"`
	TariffRate          float64     `json:"tariff_rate"`
	SelfPoweredFraction float64     `json:"self_powered_fraction"`
	LastUpdated         string      `json:"last_updated"`
	Appliances          []appliance `json:"appliances"`
	Weather             *weather    `json:"weather"`
}

// Site describes a monitored site.
type Site struct {
	SiteID   int     `json:"site_id"`
	SiteName string  `json:"site_name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Timezone string  `json:"timezone"`
}

// User is the account owning the refresh token.
type User struct {
	UserID  int    `json:"user_id"`
	Email   string `json:"email"`
	SiteIDs []int  `json:"site_ids"`
}

type authParameters struct {
	RefreshToken string `json:"REFRESH_TOKEN"`
}

type refreshRequest struct {
	ClientID       string         `json:"ClientId"`
	AuthFlow       string         `json:"AuthFlow"`
	AuthParameters authParameters `json:"AuthParameters"`
}

type refreshResponse struct {
	AuthenticationResult struct {
		AccessToken string `json:"AccessToken"`
		ExpiresIn   int    `json:"ExpiresIn"`
		IDToken     string `json:"IdToken"`
		TokenType   string `json:"TokenType"`
	} `json:"AuthenticationResult"`
}
