package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the resolved runtime configuration of the gateway.
type Settings struct {
	Port          string
	LogLevel      string
	LogFormat     string
	PublicBaseURL string

	TokenKey      string
	TokenIssuer   string
	TokenAudience string
	TokenLifetime time.Duration

	SignerPrivateKeyPEM string
	SignerKeyPairID     string

	AWSRegion       string
	S3Endpoint      string
	KeyBucket       string
	DRMKeyGroup     string
	SubtitleBucket  string
	SubtitleBaseURL string
	SubtitleTrim    int

	RedisURL         string
	ManifestCacheTTL time.Duration
	KeyCacheTTL      time.Duration
	SubtitleCacheTTL time.Duration
	FetchTimeout     time.Duration

	VODAllowedHosts  []string
	LiveURL          string
	LiveAllowedHosts []string
	LiveMode         string
	URLMode          string

	PrimaryLanguage     string
	InterpreterLanguage string
	DropResolution      string
	SubtitleFormat      string
	AudioOnlyExclusive  bool

	OIDCAuthority string
	OIDCJWKSURL   string
	OIDCAudience  string
}

// settingsFile mirrors the YAML schema of the optional CONFIG_FILE.
type settingsFile struct {
	Server struct {
		Port          string `yaml:"port"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"server"`
	Token struct {
		Issuer   string        `yaml:"issuer"`
		Audience string        `yaml:"audience"`
		Lifetime time.Duration `yaml:"lifetime"`
	} `yaml:"token"`
	Signer struct {
		KeyPairID string `yaml:"key_pair_id"`
	} `yaml:"signer"`
	Storage struct {
		Region          string `yaml:"region"`
		Endpoint        string `yaml:"endpoint"`
		KeyBucket       string `yaml:"key_bucket"`
		DRMKeyGroup     string `yaml:"drm_key_group"`
		SubtitleBucket  string `yaml:"subtitle_bucket"`
		SubtitleBaseURL string `yaml:"subtitle_base_url"`
		SubtitleTrim    int    `yaml:"subtitle_trim"`
	} `yaml:"storage"`
	Cache struct {
		RedisURL    string        `yaml:"redis_url"`
		ManifestTTL time.Duration `yaml:"manifest_ttl"`
		KeyTTL      time.Duration `yaml:"key_ttl"`
		SubtitleTTL time.Duration `yaml:"subtitle_ttl"`
	} `yaml:"cache"`
	VOD struct {
		AllowedHosts []string `yaml:"allowed_hosts"`
	} `yaml:"vod"`
	Live struct {
		URL          string   `yaml:"url"`
		AllowedHosts []string `yaml:"allowed_hosts"`
		Mode         string   `yaml:"mode"`
		URLMode      string   `yaml:"url_mode"`
	} `yaml:"live"`
	Manifest struct {
		PrimaryLanguage     string        `yaml:"primary_language"`
		InterpreterLanguage string        `yaml:"interpreter_language"`
		DropResolution      string        `yaml:"drop_resolution"`
		SubtitleFormat      string        `yaml:"subtitle_format"`
		AudioOnlyExclusive  *bool         `yaml:"audio_only_exclusive"`
		FetchTimeout        time.Duration `yaml:"fetch_timeout"`
	} `yaml:"manifest"`
	OIDC struct {
		Authority string `yaml:"authority"`
		JWKSURL   string `yaml:"jwks_url"`
		Audience  string `yaml:"audience"`
	} `yaml:"oidc"`
}

// LoadSettings resolves configuration in priority order: defaults -> file -> env.
// A missing file at path is not an error; an unreadable or malformed one is.
func LoadSettings(path string) (Settings, error) {
	s := Settings{
		Port:                "8080",
		LogLevel:            "info",
		LogFormat:           "json",
		TokenIssuer:         "https://stream-gateway",
		TokenAudience:       "urn:stream-gateway",
		TokenLifetime:       6 * time.Hour,
		AWSRegion:           "eu-north-1",
		DRMKeyGroup:         "dash",
		ManifestCacheTTL:    30 * time.Second,
		KeyCacheTTL:         180 * time.Second,
		SubtitleCacheTTL:    60 * time.Second,
		FetchTimeout:        30 * time.Second,
		LiveMode:            "hls",
		URLMode:             "proxy",
		PrimaryLanguage:     "nor",
		InterpreterLanguage: "no-x-tolk",
		DropResolution:      "1920x1080",
		SubtitleFormat:      "vtt",
		AudioOnlyExclusive:  true,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := s.applyFile(raw); err != nil {
				return Settings{}, err
			}
		case !errors.Is(err, os.ErrNotExist):
			return Settings{}, fmt.Errorf("read config file: %w", err)
		}
	}

	s.applyEnv()

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyFile(raw []byte) error {
	var f settingsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	setString(&s.Port, f.Server.Port)
	setString(&s.PublicBaseURL, f.Server.PublicBaseURL)
	setString(&s.TokenIssuer, f.Token.Issuer)
	setString(&s.TokenAudience, f.Token.Audience)
	setDuration(&s.TokenLifetime, f.Token.Lifetime)
	setString(&s.SignerKeyPairID, f.Signer.KeyPairID)
	setString(&s.AWSRegion, f.Storage.Region)
	setString(&s.S3Endpoint, f.Storage.Endpoint)
	setString(&s.KeyBucket, f.Storage.KeyBucket)
	setString(&s.DRMKeyGroup, f.Storage.DRMKeyGroup)
	setString(&s.SubtitleBucket, f.Storage.SubtitleBucket)
	setString(&s.SubtitleBaseURL, f.Storage.SubtitleBaseURL)
	if f.Storage.SubtitleTrim > 0 {
		s.SubtitleTrim = f.Storage.SubtitleTrim
	}
	setString(&s.RedisURL, f.Cache.RedisURL)
	setDuration(&s.ManifestCacheTTL, f.Cache.ManifestTTL)
	setDuration(&s.KeyCacheTTL, f.Cache.KeyTTL)
	setDuration(&s.SubtitleCacheTTL, f.Cache.SubtitleTTL)
	if len(f.VOD.AllowedHosts) > 0 {
		s.VODAllowedHosts = f.VOD.AllowedHosts
	}
	setString(&s.LiveURL, f.Live.URL)
	if len(f.Live.AllowedHosts) > 0 {
		s.LiveAllowedHosts = f.Live.AllowedHosts
	}
	setString(&s.LiveMode, f.Live.Mode)
	setString(&s.URLMode, f.Live.URLMode)
	setString(&s.PrimaryLanguage, f.Manifest.PrimaryLanguage)
	setString(&s.InterpreterLanguage, f.Manifest.InterpreterLanguage)
	setString(&s.DropResolution, f.Manifest.DropResolution)
	setString(&s.SubtitleFormat, f.Manifest.SubtitleFormat)
	if f.Manifest.AudioOnlyExclusive != nil {
		s.AudioOnlyExclusive = *f.Manifest.AudioOnlyExclusive
	}
	setDuration(&s.FetchTimeout, f.Manifest.FetchTimeout)
	setString(&s.OIDCAuthority, f.OIDC.Authority)
	setString(&s.OIDCJWKSURL, f.OIDC.JWKSURL)
	setString(&s.OIDCAudience, f.OIDC.Audience)
	return nil
}

func (s *Settings) applyEnv() {
	s.Port = GetEnv("PORT", s.Port)
	s.LogLevel = GetEnv("LOG_LEVEL", s.LogLevel)
	s.LogFormat = GetEnv("LOG_FORMAT", s.LogFormat)
	s.PublicBaseURL = GetEnv("PUBLIC_BASE_URL", s.PublicBaseURL)

	s.TokenKey = GetEnv("STREAMING_TOKEN_KEY", s.TokenKey)
	s.TokenIssuer = GetEnv("STREAMING_TOKEN_ISSUER", s.TokenIssuer)
	s.TokenAudience = GetEnv("STREAMING_TOKEN_AUDIENCE", s.TokenAudience)
	s.TokenLifetime = GetEnvDuration("STREAMING_TOKEN_LIFETIME", s.TokenLifetime)

	s.SignerPrivateKeyPEM = GetEnv("URL_SIGNER_PRIVATE_KEY", s.SignerPrivateKeyPEM)
	if file := os.Getenv("URL_SIGNER_PRIVATE_KEY_FILE"); file != "" && s.SignerPrivateKeyPEM == "" {
		if raw, err := os.ReadFile(file); err == nil {
			s.SignerPrivateKeyPEM = string(raw)
		}
	}
	s.SignerKeyPairID = GetEnv("URL_SIGNER_KEY_PAIR_ID", s.SignerKeyPairID)

	s.AWSRegion = GetEnv("AWS_REGION", s.AWSRegion)
	s.S3Endpoint = GetEnv("S3_ENDPOINT", s.S3Endpoint)
	s.KeyBucket = GetEnv("KEY_BUCKET", s.KeyBucket)
	s.DRMKeyGroup = GetEnv("DRM_KEY_GROUP", s.DRMKeyGroup)
	s.SubtitleBucket = GetEnv("SUBTITLE_BUCKET", s.SubtitleBucket)
	s.SubtitleBaseURL = GetEnv("SUBTITLE_BASE_URL", s.SubtitleBaseURL)
	s.SubtitleTrim = GetEnvInt("SUBTITLE_TRIM", s.SubtitleTrim)

	s.RedisURL = GetEnv("REDIS_URL", s.RedisURL)
	s.ManifestCacheTTL = GetEnvDuration("MANIFEST_CACHE_TTL", s.ManifestCacheTTL)
	s.KeyCacheTTL = GetEnvDuration("KEY_CACHE_TTL", s.KeyCacheTTL)
	s.SubtitleCacheTTL = GetEnvDuration("SUBTITLE_CACHE_TTL", s.SubtitleCacheTTL)
	s.FetchTimeout = GetEnvDuration("FETCH_TIMEOUT", s.FetchTimeout)

	s.VODAllowedHosts = GetEnvList("VOD_ALLOWED_HOSTS", s.VODAllowedHosts)
	s.LiveURL = GetEnv("LIVE_URL", s.LiveURL)
	s.LiveAllowedHosts = GetEnvList("LIVE_ALLOWED_HOSTS", s.LiveAllowedHosts)
	s.LiveMode = strings.ToLower(GetEnv("LIVE_MODE", s.LiveMode))
	s.URLMode = strings.ToLower(GetEnv("URL_MODE", s.URLMode))

	s.PrimaryLanguage = GetEnv("PRIMARY_LANGUAGE", s.PrimaryLanguage)
	s.InterpreterLanguage = GetEnv("INTERPRETER_LANGUAGE", s.InterpreterLanguage)
	s.DropResolution = GetEnv("DROP_RESOLUTION", s.DropResolution)
	s.SubtitleFormat = GetEnv("SUBTITLE_FORMAT", s.SubtitleFormat)
	s.AudioOnlyExclusive = GetEnvBool("AUDIO_ONLY_EXCLUSIVE", s.AudioOnlyExclusive)

	s.OIDCAuthority = GetEnv("OIDC_AUTHORITY", s.OIDCAuthority)
	s.OIDCJWKSURL = GetEnv("OIDC_JWKS_URL", s.OIDCJWKSURL)
	s.OIDCAudience = GetEnv("OIDC_AUDIENCE", s.OIDCAudience)
}

func (s *Settings) validate() error {
	if s.TokenKey == "" {
		return errors.New("missing STREAMING_TOKEN_KEY")
	}
	switch s.LiveMode {
	case "hls", "cmaf":
	default:
		return fmt.Errorf("invalid LIVE_MODE %q", s.LiveMode)
	}
	switch s.URLMode {
	case "proxy", "direct":
	case "signed":
		if s.SignerPrivateKeyPEM == "" || s.SignerKeyPairID == "" {
			return errors.New("URL_MODE signed requires URL_SIGNER_PRIVATE_KEY and URL_SIGNER_KEY_PAIR_ID")
		}
	default:
		return fmt.Errorf("invalid URL_MODE %q", s.URLMode)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
