// Package blob stores profile photos fetched during directory enrichment.
//
// Photos are persisted rather than held in memory so the enriched profile
// can record a stable reference. Filesystem and S3 backends are provided.
package blob
