package config

// BuildVersion is overridden at release time:
//
//	go build -ldflags "-X 'gitlab.com/ConsignEx/escrowrouter/internal/config.BuildVersion=1.0.0'"
var BuildVersion = "development"
