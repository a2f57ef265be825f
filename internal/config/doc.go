// Package config defines configuration structures for the numsort CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (NUMSORT_ prefix)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file, which overrides
// Default.
//
// # File Format
//
//	input: numbers.txt
//	output: sorted.txt
//	temp_url: /var/tmp/numsort     # or mem://, s3://bucket, gs://bucket
//	chunk_size: 10000000           # values per chunk
//	workers: 8
//	max_open_files: 500
//	read_buffer: 8MiB
//	merge_buffer: 1MiB
//	write_buffer: 8MiB
//	compress: false
//	checksum: true
//	sort_timeout: 24h
//	retry:
//	  attempts: 3
//	  backoff: 500ms
//	  max_backoff: 10s
package config
