package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel    = "info"
	DefaultJSONLog     = false
	DefaultUserAgent   = "wikimirror/1.0 (https://github.com/wikimirror/wikimirror)"
	DefaultHTTPTimeout = 30 * time.Second
	DefaultSpeed       = 4
	DefaultCreatorName = "wikimirror"
	DefaultCacheDir    = ".wikimirror-cache"
	DefaultOutputPath  = "output.zim.zip"
)
