package models

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width" validate:"min=1"`
	Height int `json:"height" validate:"min=1"`
}

// Geolocation is the coordinate reported by the navigator.geolocation API.
type Geolocation struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// FingerprintProfile is the identity presented to the target site.
// It is derived once per fetch, before navigation, and never changes
// for the lifetime of the session.
type FingerprintProfile struct {
	UserAgent   string      `json:"userAgent"`
	Viewport    Viewport    `json:"viewport"`
	Geolocation Geolocation `json:"geolocation"`
	TimezoneID  string      `json:"timezoneId,omitempty"`
	Locale      string      `json:"locale"`
}

// CookieRecord is a cookie applied to the session before navigation.
type CookieRecord struct {
	Name     string  `json:"name" validate:"required"`
	Value    string  `json:"value"`
	Expires  float64 `json:"expires,omitempty"` // unix seconds; 0 means session cookie
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty" validate:"omitempty,oneof=Strict Lax None"`
}

// WithDefaults fills the domain from host and applies the path and
// SameSite defaults.
func (c CookieRecord) WithDefaults(host string) CookieRecord {
	if c.Domain == "" {
		c.Domain = host
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == "" {
		c.SameSite = "Lax"
	}
	return c
}
