package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("port", "PORT")
		viper.BindEnv("mongodb_uri", "MONGODB_URI")
		viper.BindEnv("database_name", "DATABASE_NAME")
		viper.BindEnv("jwt_secret", "JWT_SECRET")
		viper.BindEnv("alpha_vantage_api_key", "ALPHA_VANTAGE_API_KEY")
		viper.BindEnv("gemini_api_key", "GEMINI_API_KEY")
		viper.BindEnv("gemini_model", "GEMINI_MODEL")
		viper.BindEnv("smtp_host", "SMTP_HOST")
		viper.BindEnv("smtp_port", "SMTP_PORT")
		viper.BindEnv("smtp_user", "SMTP_USER")
		viper.BindEnv("smtp_password", "SMTP_PASSWORD")
		viper.BindEnv("quote_ttl", "QUOTE_TTL")
		viper.BindEnv("ai_cache_ttl", "AI_CACHE_TTL")
		viper.BindEnv("fetch_rate_limit", "FETCH_RATE_LIMIT")
		viper.BindEnv("starting_balance", "STARTING_BALANCE")
		viper.BindEnv("alert_cooldown", "ALERT_COOLDOWN")
		viper.BindEnv("alert_reset_on_clear", "ALERT_RESET_ON_CLEAR")
		viper.BindEnv("alert_poll_interval", "ALERT_POLL_INTERVAL")
		viper.BindEnv("refresh_interval", "REFRESH_INTERVAL")
		viper.BindEnv("debug", "DEBUG")

		viper.SetDefault("port", "8080")
		viper.SetDefault("database_name", "portfolio-tracker")
		viper.SetDefault("gemini_model", "gemini-2.0-flash")
		viper.SetDefault("smtp_host", "smtp.gmail.com")
		viper.SetDefault("smtp_port", 587)
		viper.SetDefault("quote_ttl", 24*time.Hour)
		viper.SetDefault("ai_cache_ttl", time.Hour)
		viper.SetDefault("fetch_rate_limit", 2.0) // requests per second
		viper.SetDefault("starting_balance", 1000000.0)
		viper.SetDefault("alert_cooldown", 24*time.Hour)
		viper.SetDefault("alert_reset_on_clear", true)
		viper.SetDefault("alert_poll_interval", time.Minute)
		viper.SetDefault("refresh_interval", 24*time.Hour)
		viper.SetDefault("debug", false)
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetFloat(key string) float64 {
	InitConfig()
	return viper.GetFloat64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
