package env

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/voxrow/voxrow/pkg/pipeline"
)

// Secret is a credential that never renders in clear through fmt, slog or
// encoding/json. Use Reveal where the raw value is needed.
type Secret string

const redacted = "**********"

func (s Secret) Reveal() string { return string(s) }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return `env.Secret("` + s.String() + `")` }

func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(`"` + s.String() + `"`), nil }

// CloudflareR2 holds the S3-compatible credentials of the object store.
type CloudflareR2 struct {
	EndpointURL        string
	AWSAccessKeyID     Secret
	AWSSecretAccessKey Secret
	RegionName         string
}

// Settings holds the secrets and endpoints read from the environment.
type Settings struct {
	BPSKey                 Secret
	CloudflareR2           CloudflareR2
	DecodoWebScrapingToken Secret
	CronSecret             Secret
	JournalDSN             Secret
}

// Load reads environment variables, first merging the .env file in workDir
// when one exists. Variables already set in the process win over the file.
func Load(workDir string) (*Settings, error) {
	envFile := filepath.Join(workDir, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	return &Settings{
		BPSKey: Secret(getEnvOrDefault("BPS_KEY", "")),
		CloudflareR2: CloudflareR2{
			EndpointURL:        getEnvOrDefault("CLOUDFLARE_R2__ENDPOINT_URL", ""),
			AWSAccessKeyID:     Secret(getEnvOrDefault("CLOUDFLARE_R2__AWS_ACCESS_KEY_ID", "")),
			AWSSecretAccessKey: Secret(getEnvOrDefault("CLOUDFLARE_R2__AWS_SECRET_ACCESS_KEY", "")),
			RegionName:         getEnvOrDefault("CLOUDFLARE_R2__REGION_NAME", "auto"),
		},
		DecodoWebScrapingToken: Secret(getEnvOrDefault("DECODO_WEB_SCRAPING_TOKEN", "")),
		CronSecret:             Secret(getEnvOrDefault("CRON_SECRET", "")),
		JournalDSN:             Secret(getEnvOrDefault("JOURNAL_DSN", "")),
	}, nil
}

// Require reports every named setting that is empty, as a single
// ConfigurationError. Names are the environment variable names.
func (s *Settings) Require(names ...string) error {
	values := map[string]string{
		"BPS_KEY":                              s.BPSKey.Reveal(),
		"CLOUDFLARE_R2__ENDPOINT_URL":          s.CloudflareR2.EndpointURL,
		"CLOUDFLARE_R2__AWS_ACCESS_KEY_ID":     s.CloudflareR2.AWSAccessKeyID.Reveal(),
		"CLOUDFLARE_R2__AWS_SECRET_ACCESS_KEY": s.CloudflareR2.AWSSecretAccessKey.Reveal(),
		"DECODO_WEB_SCRAPING_TOKEN":            s.DecodoWebScrapingToken.Reveal(),
		"CRON_SECRET":                          s.CronSecret.Reveal(),
		"JOURNAL_DSN":                          s.JournalDSN.Reveal(),
	}
	var missing []string
	for _, name := range names {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &pipeline.ConfigurationError{Msg: "missing settings: " + strings.Join(missing, ", ")}
	}
	return nil
}

// R2 lists the settings needed to reach object storage.
var R2 = []string{
	"CLOUDFLARE_R2__ENDPOINT_URL",
	"CLOUDFLARE_R2__AWS_ACCESS_KEY_ID",
	"CLOUDFLARE_R2__AWS_SECRET_ACCESS_KEY",
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
