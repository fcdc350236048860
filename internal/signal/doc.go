// Package signal converts raw collar telemetry into calibrated figures.
//
// Every function in this package is pure and safe for concurrent use. The
// lookup tables (signal bands, operating modes) are built once at package
// initialisation and never mutated.
//
// # Radio strength
//
// Collars report the strength of the last received telegram as a single byte.
// The conversion chain is:
//
//	dBm     = (raw & 0xFF) / 2 - 130
//	percent = clamp(100 * 1.35 * (1 - dBm / -130), 0, 100)
//	level   = band(percent)
//
// Band boundaries include their lower bound, except Excellent which starts
// strictly above 70%:
//
//	None      [0, 5)
//	Poor      [5, 30)
//	Fair      [30, 50)
//	Good      [50, 70]
//	Excellent (70, 100]
//
// # Battery
//
// The accuWarn field carries the cell voltage in millivolts. BatteryPercent
// maps it onto the discharge curve of the collar's Li-Ion cell.
//
// # Operating modes
//
// Mode codes index a fixed table of 19 descriptors, several of which are
// hidden service modes that the vendor portal never offers for selection.
// Unknown codes produce an UnknownModeError together with the Unknown
// descriptor so callers can keep going.
package signal
