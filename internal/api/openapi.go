package api

import (
	"github.com/siteflow/server/internal/config"
	"github.com/siteflow/server/internal/procedure"
)

// OpenAPIInfo describes the REST surface for the generated document.
func OpenAPIInfo(cfg config.Config, version string) procedure.Info {
	if version == "" {
		version = "dev"
	}
	return procedure.Info{
		Title:       "Siteflow API",
		Version:     version,
		Description: "Todo API. Protected operations accept the session cookie or a bearer token issued at sign-in.",
		ServerURL:   cfg.Paths.API,
		CookieName:  cfg.Auth.CookieName,
	}
}
