// Package camera holds the cloud device descriptor and the dual-lens
// expansion rule that turns one physical device into its logical streams.
package camera

import "strings"

// Dual-lens product models expose two feeds under a single cloud identity.
const (
	ModelWyzeDuo  = "WL_DUO"
	ModelGwellDuo = "GW_DUO"
	ChannelPTZ    = 0
	ChannelWide   = 1
)

// Device describes one physical camera as reported by the cloud API.
// Nickname is the user-facing label of the physical device and is never
// mutated by stream expansion; per-stream display names live on the
// registry entries instead.
type Device struct {
	MAC          string `json:"mac"`
	Nickname     string `json:"nickname"`
	NameURI      string `json:"name_uri"`
	ProductModel string `json:"product_model"`
	IP           string `json:"ip,omitempty"`
	FirmwareVer  string `json:"firmware_ver,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	// ParamOverrides carries per-device tuning from the config file.
	ParamOverrides map[string]string `json:"-"`
}

// Clone returns a fully independent copy of the device. The override map
// is copied as well so variants never share mutable state.
func (d *Device) Clone() *Device {
	c := *d
	if d.ParamOverrides != nil {
		c.ParamOverrides = make(map[string]string, len(d.ParamOverrides))
		for k, v := range d.ParamOverrides {
			c.ParamOverrides[k] = v
		}
	}
	return &c
}

// IsDualLens reports whether the product model exposes two feeds.
func IsDualLens(model string) bool {
	return model == ModelWyzeDuo || model == ModelGwellDuo
}

// Variant is one logical stream derived from a physical device.
type Variant struct {
	Device      *Device
	Channel     int
	URI         string
	DisplayName string
}

// Variants expands a device into its logical stream variants. Dual-lens
// models yield a PTZ feed (channel 0, "-ptz") and a wide feed (channel 1,
// "-wide"); every other model yields a single variant with the device's
// own URI. Each variant owns an independent clone of the device.
func Variants(d *Device) []Variant {
	base := d.NameURI
	if base == "" {
		base = URIName(d.Nickname)
	}
	nick := d.Nickname
	if nick == "" {
		nick = base
	}

	if !IsDualLens(d.ProductModel) {
		return []Variant{{Device: d.Clone(), Channel: 0, URI: base, DisplayName: nick}}
	}

	return []Variant{
		{Device: d.Clone(), Channel: ChannelPTZ, URI: base + "-ptz", DisplayName: nick + " (PTZ)"},
		{Device: d.Clone(), Channel: ChannelWide, URI: base + "-wide", DisplayName: nick + " (Wide)"},
	}
}

// URIName converts a device nickname into a URI-friendly stream name.
func URIName(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ', c == '-', c == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
