// Package geoip resolves IP addresses to geolocation data using an
// in-memory MMDB City database. It adapts
// _examples/Livepeer-FrameWorks-monorepo/pkg/geoip's Reader/NewReader/Lookup
// shape: the database here is parsed from a renewed in-memory buffer
// (pkg/renewer fetches it over HTTP on a schedule) rather than opened from
// a static file path, so the teacher's "file missing, degrade gracefully"
// state has no equivalent — renewer.Create already fails the process at
// startup if the initial fetch errors. The private/reserved-address
// exclusion in Resolve is carried over from the teacher's Lookup, since
// MMDB providers never carry geolocation for those ranges.
package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// UserGeolocation is the resolved location of an IP address.
type UserGeolocation struct {
	City           *string  `json:"city,omitempty"`
	Continent      *string  `json:"continent,omitempty"`
	Country        *string  `json:"country,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	AccuracyRadius *uint16  `json:"accuracy_radius,omitempty"`
	TimeZone       *string  `json:"time_zone,omitempty"`
}

// DB resolves IP addresses against a loaded MMDB City database. MaxMind
// GeoLite2, DB-IP, and IP2Location all ship the same MMDB format, so this
// reader is provider-agnostic the same way the teacher's Reader is.
type DB struct {
	inner *geoip2.Reader
}

// Construct parses an MMDB City database from an in-memory buffer. It is
// the constructor plugged into renewer.Renewer[*DB].
func Construct(data []byte) (*DB, error) {
	inner, err := geoip2.NewFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("geoip: parse database: %w", err)
	}
	return &DB{inner: inner}, nil
}

// Resolve looks up addr and returns its geolocation. A nil result (with a
// nil error) means the address is private/reserved or was not found in
// any range — both are the common case, not a failure. A non-nil error
// means the database itself is unusable (corrupt data or an I/O failure).
func (db *DB) Resolve(addr net.IP) (*UserGeolocation, error) {
	if addr == nil || isPrivateIP(addr) {
		return nil, nil
	}

	record, err := db.inner.City(addr)
	if err != nil {
		return nil, fmt.Errorf("geoip: lookup: %w", err)
	}

	loc := &UserGeolocation{
		City:      cityName(record.City.Names),
		Continent: optionalString(record.Continent.Code),
		Country:   optionalString(record.Country.IsoCode),
		TimeZone:  optionalString(record.Location.TimeZone),
	}
	if record.Location.Latitude != 0 {
		lat := record.Location.Latitude
		loc.Latitude = &lat
	}
	if record.Location.Longitude != 0 {
		lon := record.Location.Longitude
		loc.Longitude = &lon
	}
	if record.Location.AccuracyRadius != 0 {
		radius := record.Location.AccuracyRadius
		loc.AccuracyRadius = &radius
	}

	if loc.City == nil && loc.Continent == nil && loc.Country == nil {
		return nil, nil
	}
	return loc, nil
}

// cityName prefers the English localization, falling back to the first name
// available in the map.
func cityName(names map[string]string) *string {
	if len(names) == 0 {
		return nil
	}
	if en, ok := names["en"]; ok {
		return &en
	}
	for _, name := range names {
		return &name
	}
	return nil
}

// isPrivateIP reports whether addr is a loopback, link-local, or private
// range address. MMDB providers never carry geolocation for these ranges.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	return ip.IsPrivate()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
