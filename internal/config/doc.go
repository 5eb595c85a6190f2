// Package config provides configuration parsing for the connect CLI.
//
// The configuration is stored in connect.json next to the scenario being run.
// This package handles loading, saving, and validating it.
//
// # Configuration File Structure
//
//	{
//	  "devtools": {
//	    "addr": "localhost:7070",
//	    "allowedOrigins": ["http://localhost:3000"]
//	  },
//	  "metrics": {
//	    "namespace": "connect"
//	  },
//	  "log": {
//	    "level": "debug",
//	    "format": "json"
//	  },
//	  "persist": {
//	    "backend": "s3",
//	    "bucket": "my-snapshots",
//	    "prefix": "dev/",
//	    "region": "eu-west-1"
//	  }
//	}
//
// Missing fields take the values returned by New.
package config
