// Package capture wires the geotagged observation capture pipeline together from a config.Config:
// the submission transactor, the live position provider and the observation session that uses them.
//
// Individual stages live in their own packages: geo (coordinate conversion), geotag (EXIF
// extraction), source (image handles), position (live device position), observation (the session
// state machine), submit (transactors), feature, lookup and mapping.
package capture
