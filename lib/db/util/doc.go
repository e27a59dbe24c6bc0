// Package util provides helpers shared by the database engines and the command line.
//
//   - functions: seeded FNV-1a hashing for shard selection and replica ids
//   - statistics: shard distribution stats and a sampled record size histogram (go-metrics)
package util
