package app

// version is overridden at build time via
// -ldflags "-X github.com/mcpjam/hosted-gateway/cmd/gateway/app.version=...".
var version = "dev"

func getVersion() string {
	return version
}
