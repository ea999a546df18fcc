// Package config loads the tap configuration.
//
// # Sources
//
// A single file named by --config is read with viper; its format follows the
// extension (.json, .yaml/.yml, .toml). Before parsing, ${VAR_NAME}
// references in the file are replaced with environment values. Any key can
// then be overridden with a CRMTAP_ prefixed variable:
//
//	CRMTAP_START_DATE=2024-01-01T00:00:00Z crmtap sync --config tap.json --catalog catalog.json
//
// # Keys
//
//	refresh_token, client_id, client_secret, start_date   required
//	access_token (alias: token)                            optional seed token
//	login_url, instance_url, api_version, page_size        remote API
//	rate_limit_per_sec, retry_attempts, retry_delay,
//	request_timeout                                        HTTP client
//	log_level, log_format, enable_tracing,
//	metrics_log_interval                                   observability
//	checkpoint_db                                          SQLite checkpoint journal
//
// The loaded Config is a plain value. Components receive it explicitly; the
// package keeps no global state.
package config
