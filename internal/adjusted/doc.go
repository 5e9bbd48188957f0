// Package adjusted holds the output artifact of the estimates loader: a
// dense (date x asset) baseline matrix plus sparse historical overwrites.
//
// An overwrite keyed at row r applies to any trailing window that ends
// before r; windows ending at or after r read the baseline. Array.AsOf is a
// small reference consumer of that contract used by tests and exports.
package adjusted
