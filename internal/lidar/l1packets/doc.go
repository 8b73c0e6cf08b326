// Package l1packets owns Layer 1 (Packets) of the LiDAR data model.
//
// Responsibilities: MSOP and DIFOP ingestion over UDP, PCAP replay, and
// decoding of RoboSense RS16 / RS128 records into calibrated points. This
// layer produces per-packet point slices and reports the first azimuth of
// each packet so callers can detect revolution boundaries.
//
// Dependency rule: L1 has no inward dependencies on higher layers.
package l1packets
