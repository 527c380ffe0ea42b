// Package domain models the disaster events tracked by the sync service:
// NWS warnings and watches, wildfire incidents, and county drought episodes.
//
// # Data Sources
//
// Alerts come from the NWS API (https://api.weather.gov/alerts/active) as a
// GeoJSON feature collection. Wildfires come from the NIFC ArcGIS interagency
// perimeter layer, and drought polygons from the U.S. Drought Monitor (USDM).
//
// # VTEC
//
// Every warning or watch carries a Valid Time Event Code in
// parameters.VTEC, for example:
//
//	/O.NEW.KSBY.TO.W.0015.251212T2203Z-251212T2300Z/
//
// The dot-separated fields are product class, action (message type),
// office, phenomena, significance, event tracking number (ETN), and the
// validity window. The tuple office+phenomena+significance+ETN+year is
// stable across every update of the same hazard, so it is used as the event
// key: "KSBY-TO-WARNING-0015-25". Only significance W (warning) and A
// (watch) are accepted; advisories and statements are rejected rather than
// keyed under a guessed significance. See [ParseVTEC].
//
// A start time of "000000T0000Z" is the NWS sentinel for "already in
// effect". The key year then falls back to the end time, then to the
// current UTC year.
//
// Message types (actions):
//
//	NEW, UPG           create the event when the key is unknown
//	COR, UPG           replace the event wholesale
//	CON, EXT, EXA, EXB merge into the existing event
//	CAN, EXP           ignored on replay; the completion sweep retires events
//
// # Zones
//
// geocode.SAME holds six-digit "0SSCCC" codes (state FIPS SS, county FIPS
// CCC) and geocode.UGC holds the matching zone codes at the same index. One
// [Location] is produced per SAME code.
//
// # Geometry
//
// Coordinates follow GeoJSON order (longitude, latitude). Polygons are kept
// as exterior rings only; holes are dropped. Rings are repaired once, when a
// shape is loaded from a feed: duplicate vertices are removed, open rings are
// closed and self-intersecting rings are split at their crossings. See
// [RepairShape]. Containment tests then only walk rings whose bound holds the
// point.
//
// # Drought Monitor
//
// DM is the USDM category, 0 (abnormally dry) through 4 (exceptional
// drought), rendered as "D0".."D4".
package domain
