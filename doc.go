// Package mcap implements the reader/writer engine for the MCAP container
// format: record framing, chunked compression with CRC integrity, and an
// indexed, time-ordered message iterator.
//
// Collaborators such as CLI tools, remote object-store readers, and ROS bag
// converters are expected to be built on top of this package; none of that
// is implemented here.
package mcap
