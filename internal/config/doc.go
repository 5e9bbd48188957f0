// Package config loads the estimates service configuration.
//
// # Configuration Sources
//
// Configuration is layered, later sources overriding earlier ones:
//
//	1. Default values
//	2. A YAML file (ESTIMATES_CONFIG, else config.yaml or configs/config.yaml)
//	3. Environment variables
//
// # Environment Variables
//
// Every variable is prefixed with ESTIMATES and follows the struct nesting:
//
//	ESTIMATES_SERVER_PORT=8080
//	ESTIMATES_LOGGING_LEVEL=debug
//	ESTIMATES_DATA_EVENTS_FILES=q1.csv,q2.csv
//	ESTIMATES_DATA_FIELDS=estimate:eps_mean,event_date:event_date
//	ESTIMATES_DATA_SELECTOR=previous
//
// # Example File
//
//	data:
//	  events_files: [estimates.xlsx]
//	  sheet_name: Estimates
//	  selector: next
//	  fields:
//	    estimate: eps_mean
//	    release: event_date
//	  datetime_columns: [announced]
//
// Paths are relative to paths.base_dir, which defaults to the directory of
// the executable.
package config
