// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Search   SearchConfig   `mapstructure:"search"`
	History  HistoryConfig  `mapstructure:"history"`
	Reply    ReplyConfig    `mapstructure:"reply"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 存储 HTTP 服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// TelegramConfig 存储 Telegram Bot 相关的配置。
type TelegramConfig struct {
	Token         string `mapstructure:"token"`
	APIBase       string `mapstructure:"api_base"`
	FileAPIBase   string `mapstructure:"file_api_base"`
	Mode          string `mapstructure:"mode"` // "webhook" 或 "poll"
	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookPath   string `mapstructure:"webhook_path"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	ChunkLimit    int    `mapstructure:"chunk_limit"`
	ChunkDelayMs  int    `mapstructure:"chunk_delay_ms"`
	PollTimeout   int    `mapstructure:"poll_timeout"`
}

// GeminiConfig 存储大语言模型相关的配置。
type GeminiConfig struct {
	APIKey     string                 `mapstructure:"api_key"`
	BaseURL    string                 `mapstructure:"base_url"`
	Model      string                 `mapstructure:"model"`
	Generation GeminiGenerationConfig `mapstructure:"generation"`
	Prompt     GeminiPromptConfig     `mapstructure:"prompt"`
}

// GeminiGenerationConfig 配置生成相关参数（可选）。
type GeminiGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_output_tokens"`
}

// GeminiPromptConfig 配置系统提示与各类用户可见的固定文案。
// 默认值面向俄语用户，可在配置文件中覆盖。
type GeminiPromptConfig struct {
	System         string `mapstructure:"system"`
	Greeting       string `mapstructure:"greeting"`
	ClearedText    string `mapstructure:"cleared_text"`
	FailureText    string `mapstructure:"failure_text"`
	BlockedText    string `mapstructure:"blocked_text"`
	EmptyReplyText string `mapstructure:"empty_reply_text"`
	PhotoTooBig    string `mapstructure:"photo_too_big"`
	DocTooBig      string `mapstructure:"doc_too_big"`
}

// SearchConfig 存储搜索增强相关的配置。
type SearchConfig struct {
	APIKey          string   `mapstructure:"api_key"`
	CSEID           string   `mapstructure:"cse_id"`
	ResultCount     int      `mapstructure:"result_count"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	Decision        string   `mapstructure:"decision"` // "heuristic" 或 "llm"
	TriggerWords    []string `mapstructure:"trigger_words"`
	UnavailableText string   `mapstructure:"unavailable_text"`
}

// HistoryConfig 存储对话历史相关的配置。
type HistoryConfig struct {
	MaxTurns   int         `mapstructure:"max_turns"`
	TTLDays    int         `mapstructure:"ttl_days"`
	Redis      RedisConfig `mapstructure:"redis"`
	SQLitePath string      `mapstructure:"sqlite_path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ReplyConfig 存储生成调用的重试与并发限制配置。
type ReplyConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffBaseSec int `mapstructure:"backoff_base_sec"`
	BackoffMaxSec  int `mapstructure:"backoff_max_sec"`
	MaxConcurrent  int `mapstructure:"max_concurrent"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// setDefaults 注册所有可省略配置项的默认值。
func setDefaults() {
	viper.SetDefault("server.port", "10000")
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("telegram.api_base", "https://api.telegram.org")
	viper.SetDefault("telegram.file_api_base", "https://api.telegram.org/file")
	viper.SetDefault("telegram.mode", "webhook")
	viper.SetDefault("telegram.webhook_path", "/webhook")
	viper.SetDefault("telegram.chunk_limit", 4090)
	viper.SetDefault("telegram.chunk_delay_ms", 400)
	viper.SetDefault("telegram.poll_timeout", 30)

	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("gemini.generation.max_output_tokens", 2048)
	viper.SetDefault("gemini.prompt.system",
		"Ты — остроумный, дружелюбный помощник в Telegram. Отвечай кратко, по-русски, с лёгким юмором когда уместно.")
	viper.SetDefault("gemini.prompt.greeting",
		"Привет! Я бот на Gemini 2.0 Flash\n\n• Помню весь диалог\n• Сам решаю, когда гуглить\n• Понимаю фото и документы\n• Быстро и по-русски\n\n/clear — очистить память")
	viper.SetDefault("gemini.prompt.cleared_text", "Память очищена")
	viper.SetDefault("gemini.prompt.failure_text", "Ошибка связи с Gemini, попробуй позже")
	viper.SetDefault("gemini.prompt.blocked_text", "Ответ заблокирован по политике безопасности.")
	viper.SetDefault("gemini.prompt.empty_reply_text", "Не знаю, что сказать")
	viper.SetDefault("gemini.prompt.photo_too_big", "Фото слишком большое (>8 МБ)")
	viper.SetDefault("gemini.prompt.doc_too_big", "Файл слишком большой (>10 МБ)")

	viper.SetDefault("search.result_count", 4)
	viper.SetDefault("search.timeout_seconds", 7)
	viper.SetDefault("search.decision", "heuristic")
	viper.SetDefault("search.trigger_words",
		[]string{"поиск", "новости", "узнай", "погода", "курс", "цена", "news", "price", "weather"})
	viper.SetDefault("search.unavailable_text", "Поиск временно недоступен.")

	viper.SetDefault("history.max_turns", 40)
	viper.SetDefault("history.ttl_days", 30)
	viper.SetDefault("history.sqlite_path", "./data/history.db")

	viper.SetDefault("reply.max_attempts", 4)
	viper.SetDefault("reply.backoff_base_sec", 4)
	viper.SetDefault("reply.backoff_max_sec", 12)
	viper.SetDefault("reply.max_concurrent", 10)
	viper.SetDefault("reply.timeout_seconds", 60)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
}
