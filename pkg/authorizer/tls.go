package authorizer

import "crypto/tls"

func tlsConfig(insecureSkipVerify bool) *tls.Config {
	return &tls.Config{InsecureSkipVerify: insecureSkipVerify} //nolint:gosec // operator opt-in only, for private PDP deployments
}
