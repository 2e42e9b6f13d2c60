package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	// Config holds all runtime configuration. It is populated once at startup
	// and handed to constructors; nothing reads the environment afterwards.
	Config struct {
		Debug            bool
		TestMode         bool
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		AppName          string
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		DefaultFromEmail string
		SendgridAPIKey   string
		RollbarToken     string

		Server   ServerConfig
		Database DatabaseConfig
		Upload   UploadConfig
	}

	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugAddr                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	DatabaseConfig struct {
		URI  string
		Name string
	}

	UploadConfig struct {
		Dir             string
		MaxImageSize    int64
		MaxDocumentSize int64
		RetryAttempts   int
		RetryDelay      time.Duration
		ThumbnailSize   int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Chantio")
	v.SetDefault("secretKey", "x6u)hby+y9b%7-#1&ne=^l$nr5ctp2vx0m&6fq!a(4fz94pfjm")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddr", ":8000")
	v.SetDefault("serverDebugAddr", ":8001")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 10*time.Minute)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("databaseUri", "mongodb://localhost:27017")
	v.SetDefault("databaseName", "chantio")

	v.SetDefault("uploadDir", "var/uploads")
	v.SetDefault("uploadMaxImageSize", int64(10<<20))    // 10 MiB
	v.SetDefault("uploadMaxDocumentSize", int64(25<<20)) // 25 MiB
	v.SetDefault("uploadRetryAttempts", 3)
	v.SetDefault("uploadRetryDelay", 200*time.Millisecond)
	v.SetDefault("uploadThumbnailSize", 320)

	env := os.Getenv("ENV")
	testMode := false
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         testMode,
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          Getwd(),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Addr:                      v.GetString("serverAddr"),
			DebugAddr:                 v.GetString("serverDebugAddr"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		},
		Database: DatabaseConfig{
			URI:  v.GetString("databaseUri"),
			Name: v.GetString("databaseName"),
		},
		Upload: UploadConfig{
			Dir:             v.GetString("uploadDir"),
			MaxImageSize:    v.GetInt64("uploadMaxImageSize"),
			MaxDocumentSize: v.GetInt64("uploadMaxDocumentSize"),
			RetryAttempts:   v.GetInt("uploadRetryAttempts"),
			RetryDelay:      v.GetDuration("uploadRetryDelay"),
			ThumbnailSize:   v.GetInt("uploadThumbnailSize"),
		},
	}
}

// DefaultFromAddr returns the default sender as a mail.Address.
func (c *Config) DefaultFromAddr() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
}
