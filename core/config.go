package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		FrontendBaseURL  string
		WorkDir          string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Storage  StorageConfig
		Client   ClientConfig
		Google   GoogleConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool
		QueryTimeout  time.Duration
	}

	StorageConfig struct {
		Driver          string // fs | oss
		Bucket          string
		RootDir         string
		PublicBaseURL   string
		OSSEndpoint     string
		OSSAccessKey    string
		OSSAccessSecret string
		MaxPDFSize      int64
		MaxImageSize    int64
	}

	ClientConfig struct {
		BaseURL        string
		RequestTimeout time.Duration
		MaxRetries     uint64
		CacheDir       string
	}

	GoogleConfig struct {
		ClientID string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig loads the configuration for the current ENV from defaults, environment variables and
// an optional `config/.env.<env>` file.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Maktab")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "kq9$tz0-m3)d!w7+4bn&ey5r2(c#x@8l^fa6hgp1vuo=js")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("serverHost", "")
	v.SetDefault("serverPort", "8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 30*24*time.Hour)
	v.SetDefault("shutdownTimeout", 5*time.Second)
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "maktab")
	v.SetDefault("dbUser", "maktab")
	v.SetDefault("dbPassword", "maktab")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbInMemory", false)
	v.SetDefault("dbQueryTimeout", 10*time.Second)
	v.SetDefault("storageDriver", "fs")
	v.SetDefault("storageBucket", "lesson-pdfs")
	v.SetDefault("storageRootDir", "media")
	v.SetDefault("storagePublicBaseURL", "http://localhost:8000/storage")
	v.SetDefault("storageMaxPDFSize", int64(50*1024*1024))
	v.SetDefault("storageMaxImageSize", int64(5*1024*1024))
	v.SetDefault("clientBaseURL", "http://localhost:8000")
	v.SetDefault("clientRequestTimeout", 15*time.Second)
	v.SetDefault("clientMaxRetries", uint64(3))
	v.SetDefault("clientCacheDir", filepath.Join(os.TempDir(), "maktab"))

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		WorkDir:          workDir,
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Port:                      v.GetString("serverPort"),
			DebugHost:                 v.GetString("serverDebugHost"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			ShutdownTimeout:           v.GetDuration("shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
			InMemory:      v.GetBool("dbInMemory"),
			QueryTimeout:  v.GetDuration("dbQueryTimeout"),
		},
		Storage: StorageConfig{
			Driver:          v.GetString("storageDriver"),
			Bucket:          v.GetString("storageBucket"),
			RootDir:         v.GetString("storageRootDir"),
			PublicBaseURL:   strings.TrimRight(v.GetString("storagePublicBaseURL"), "/"),
			OSSEndpoint:     v.GetString("ossEndpoint"),
			OSSAccessKey:    v.GetString("ossAccessKey"),
			OSSAccessSecret: v.GetString("ossAccessSecret"),
			MaxPDFSize:      v.GetInt64("storageMaxPDFSize"),
			MaxImageSize:    v.GetInt64("storageMaxImageSize"),
		},
		Client: ClientConfig{
			BaseURL:        strings.TrimRight(v.GetString("clientBaseURL"), "/"),
			RequestTimeout: v.GetDuration("clientRequestTimeout"),
			MaxRetries:     v.GetUint64("clientMaxRetries"),
			CacheDir:       v.GetString("clientCacheDir"),
		},
		Google: GoogleConfig{
			ClientID: v.GetString("googleClientId"),
		},
	}
}

// NewTestConfig returns a Config suitable for unit tests: no env, no files, in-memory storage.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "Maktab",
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		defaultFromEmail: "noreply@localhost",
		Server: ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Database: DatabaseConfig{InMemory: true, QueryTimeout: 5 * time.Second},
		Storage: StorageConfig{
			Driver:        "fs",
			Bucket:        "lesson-pdfs",
			PublicBaseURL: "http://localhost:8000/storage",
			MaxPDFSize:    50 * 1024 * 1024,
			MaxImageSize:  5 * 1024 * 1024,
		},
		Client: ClientConfig{RequestTimeout: 5 * time.Second, MaxRetries: 2},
	}
}
