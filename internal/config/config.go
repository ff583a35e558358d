package config

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	WDK      WDKConfig
	Otel     OtelConfig
}

type ServerConfig struct {
	Host             string
	Port             int
	AllowedOrigins   []string
	AllowEmptyOrigin bool
	AgentSecret      string
	RequireAuth      bool
}

type DatabaseConfig struct {
	URL string
}

// WDKConfig points at the site's WDK REST service, the system of
// record for executed strategies.
type WDKConfig struct {
	BaseURL string
	SiteID  string
}

type OtelConfig struct {
	Endpoint    string
	Environment string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             GetEnvWithFallback("STRATAGEM_SERVER_HOST", "HOST", "0.0.0.0"),
			Port:             GetEnvIntWithFallback("STRATAGEM_SERVER_PORT", "PORT", 8080),
			AllowedOrigins:   GetEnvSlice("STRATAGEM_ALLOWED_ORIGINS", []string{"*"}),
			AllowEmptyOrigin: GetEnvBool("STRATAGEM_ALLOW_EMPTY_ORIGIN", false),
			AgentSecret:      GetEnvWithFallback("STRATAGEM_AGENT_SECRET", "AGENT_SECRET", ""),
			RequireAuth:      GetEnvBool("STRATAGEM_REQUIRE_AUTH", false),
		},
		Database: DatabaseConfig{
			URL: GetEnvWithFallback("STRATAGEM_POSTGRES_URL", "DATABASE_URL", "postgres://localhost:5432/stratagem?sslmode=disable"),
		},
		WDK: WDKConfig{
			BaseURL: GetEnvWithFallback("STRATAGEM_WDK_URL", "WDK_BASE_URL", ""),
			SiteID:  GetEnvWithFallback("STRATAGEM_SITE_ID", "SITE_ID", "VEuPathDB"),
		},
		Otel: OtelConfig{
			Endpoint:    GetEnvWithFallback("STRATAGEM_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Environment: GetEnvWithFallback("STRATAGEM_ENVIRONMENT", "ENVIRONMENT", "development"),
		},
	}
}
