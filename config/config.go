package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-to-archive/archive"
	"github.com/dhcgn/mbox-to-archive/mbox"
)

// Source types accepted by --source-type.
const (
	SourceAuto = "auto"
	SourceMbox = "mbox"
	SourceEML  = "eml"
	SourceDir  = "dir"
	SourceIMAP = "imap"
)

// Config captures all command-line options required to run an extraction.
type Config struct {
	Source      string
	SourceType  string
	Destination string
	RootName    string
	NameLength  int
	StatsOnly   bool
	MboxDialect mbox.Dialect
	ManifestDir string
	LogLevel    string
	LogDir      string
	Progress    bool

	ContinueOnFolderError bool

	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	IMAPMailbox        string
	UseTLS             bool
	InsecureSkipVerify bool

	PGDSN string

	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("source", "", "Mailbox to extract: mbox file, .eml file, directory tree or imap[s]://user@host/mailbox")
	flags.String("source-type", SourceAuto, "Source type: auto, mbox, eml, dir, imap")
	flags.String("dest", "", "Destination directory for the archive tree")
	flags.String("root-name", "", "Name of the top archive unit (default \"archive\")")
	flags.Int("name-length", archive.DefaultNameLength, "Maximum label length in unit names")
	flags.Bool("stats-only", false, "Walk the source and report statistics without writing units")
	flags.String("mbox-dialect", string(mbox.DialectAuto), "mbox delimiter dialect: auto, heuristic, strict")
	flags.String("manifest-dir", "", "Directory for the manifest journal (default: the destination)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.Bool("progress", true, "Show a progress bar at info log level")
	flags.Bool("continue-on-folder-error", false, "Keep going when a folder cannot be enumerated")

	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.String("imap-mailbox", "", "Only extract this mailbox and its children")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")

	flags.String("pg-dsn", "", "Postgres DSN for the unit index (falls back to ARCHIVE_PG_DSN env var)")

	flags.String("s3-bucket", "", "Mirror written units to this S3 bucket")
	flags.String("s3-prefix", "", "Key prefix inside the S3 bucket")
	flags.String("s3-region", "", "S3 region")
	flags.String("s3-endpoint", "", "Custom S3 endpoint for S3-compatible stores")
	flags.String("s3-access-key", "", "S3 access key (default credential chain when unset)")
	flags.String("s3-secret-key", "", "S3 secret key")

	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")

	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()
	var cfg Config
	var err error

	str := func(name string, dst *string) {
		if err == nil {
			*dst, err = flags.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil {
			*dst, err = flags.GetBool(name)
		}
	}
	integer := func(name string, dst *int) {
		if err == nil {
			*dst, err = flags.GetInt(name)
		}
	}
	array := func(name string, dst *[]string) {
		if err == nil {
			*dst, err = flags.GetStringArray(name)
		}
	}

	var dialect string
	str("source", &cfg.Source)
	str("source-type", &cfg.SourceType)
	str("dest", &cfg.Destination)
	str("root-name", &cfg.RootName)
	integer("name-length", &cfg.NameLength)
	boolean("stats-only", &cfg.StatsOnly)
	str("mbox-dialect", &dialect)
	str("manifest-dir", &cfg.ManifestDir)
	str("log-level", &cfg.LogLevel)
	str("log-dir", &cfg.LogDir)
	boolean("progress", &cfg.Progress)
	boolean("continue-on-folder-error", &cfg.ContinueOnFolderError)
	str("imap-host", &cfg.IMAPHost)
	integer("imap-port", &cfg.IMAPPort)
	str("imap-user", &cfg.IMAPUser)
	str("imap-pass", &cfg.IMAPPass)
	str("imap-mailbox", &cfg.IMAPMailbox)
	boolean("use-tls", &cfg.UseTLS)
	boolean("insecure-skip-verify", &cfg.InsecureSkipVerify)
	str("pg-dsn", &cfg.PGDSN)
	str("s3-bucket", &cfg.S3Bucket)
	str("s3-prefix", &cfg.S3Prefix)
	str("s3-region", &cfg.S3Region)
	str("s3-endpoint", &cfg.S3Endpoint)
	str("s3-access-key", &cfg.S3AccessKey)
	str("s3-secret-key", &cfg.S3SecretKey)
	array("include-header", &cfg.IncludeHeader)
	array("include-body", &cfg.IncludeBody)
	array("exclude-header", &cfg.ExcludeHeader)
	array("exclude-body", &cfg.ExcludeBody)
	if err != nil {
		return Config{}, err
	}

	cfg.MboxDialect, err = mbox.ParseDialect(dialect)
	if err != nil {
		return Config{}, err
	}
	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// normalize resolves the source type, applies imap URLs and cleans paths.
func normalize(cfg *Config) error {
	cfg.SourceType = strings.ToLower(strings.TrimSpace(cfg.SourceType))
	if cfg.SourceType == "" {
		cfg.SourceType = SourceAuto
	}

	if u, ok := imapURL(cfg.Source); ok {
		if cfg.SourceType == SourceAuto {
			cfg.SourceType = SourceIMAP
		}
		if err := applyIMAPURL(cfg, u); err != nil {
			return err
		}
		cfg.Source = u.Redacted()
	}

	if cfg.SourceType == SourceAuto && cfg.Source == "" {
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--source is required")
		}
		cfg.SourceType = SourceIMAP
	}
	if cfg.SourceType == SourceAuto {
		t, err := DetectSourceType(cfg.Source)
		if err != nil {
			return err
		}
		cfg.SourceType = t
	}

	if cfg.SourceType != SourceIMAP && cfg.Source != "" {
		cfg.Source = filepath.Clean(cfg.Source)
	}
	if cfg.Destination != "" {
		cfg.Destination = filepath.Clean(cfg.Destination)
	}
	if cfg.ManifestDir == "" {
		cfg.ManifestDir = cfg.Destination
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	return nil
}

func imapURL(s string) (*url.URL, bool) {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "imap://") && !strings.HasPrefix(lower, "imaps://") {
		return nil, false
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}
	return u, true
}

// applyIMAPURL fills imap settings the flags left unset.
func applyIMAPURL(cfg *Config, u *url.URL) error {
	if cfg.IMAPHost == "" {
		cfg.IMAPHost = u.Hostname()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid imap port %q: %w", p, err)
		}
		cfg.IMAPPort = port
	}
	if u.User != nil {
		if cfg.IMAPUser == "" {
			cfg.IMAPUser = u.User.Username()
		}
		if pass, ok := u.User.Password(); ok && cfg.IMAPPass == "" {
			cfg.IMAPPass = pass
		}
	}
	if mailbox := strings.Trim(u.Path, "/"); mailbox != "" && cfg.IMAPMailbox == "" {
		cfg.IMAPMailbox = mailbox
	}
	if strings.EqualFold(u.Scheme, "imap") {
		cfg.UseTLS = false
		if u.Port() == "" {
			cfg.IMAPPort = 143
		}
	}
	return nil
}

// DetectSourceType picks a source type from what is found at path.
func DetectSourceType(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("inspect source: %w", err)
	}
	if info.IsDir() {
		return SourceDir, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".eml") {
		return SourceEML, nil
	}
	return SourceMbox, nil
}

func validateConfig(cfg Config) error {
	switch cfg.SourceType {
	case SourceMbox, SourceEML, SourceDir:
		if cfg.Source == "" {
			return fmt.Errorf("--source is required")
		}
	case SourceIMAP:
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required for imap sources")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required for imap sources")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("invalid --source-type: %s", cfg.SourceType)
	}

	if !cfg.StatsOnly && cfg.Destination == "" {
		return fmt.Errorf("--dest is required unless --stats-only is set")
	}
	if cfg.NameLength <= 0 {
		return fmt.Errorf("--name-length must be positive")
	}
	if cfg.S3Bucket == "" && (cfg.S3Prefix != "" || cfg.S3Endpoint != "") {
		return fmt.Errorf("--s3-prefix and --s3-endpoint need --s3-bucket")
	}
	if (cfg.S3AccessKey == "") != (cfg.S3SecretKey == "") {
		return fmt.Errorf("--s3-access-key and --s3-secret-key must be set together")
	}
	if cfg.StatsOnly && cfg.S3Bucket != "" {
		return fmt.Errorf("--s3-bucket cannot be combined with --stats-only")
	}

	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
