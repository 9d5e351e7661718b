package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/secrets"
)

const (
	app       = "advisor-analyzer"
	envPrefix = "ADVISOR_ANALYZER"
)

type Config struct {
	Applicant      *ApplicantConfig `mapstructure:"applicant"`
	ReportsDir     string           `mapstructure:"reports-dir"`
	ConflictPolicy string           `mapstructure:"conflict-policy"`
	Concurrency    int              `mapstructure:"concurrency"`
	RunTimeout     time.Duration    `mapstructure:"run-timeout"`
	HTTP           *HTTPConfig      `mapstructure:"http"`
	Search         *SearchConfig    `mapstructure:"search"`
	Scholar        *ScholarConfig   `mapstructure:"scholar"`
	Selection      *SelectionConfig `mapstructure:"selection"`
	Synthesis      *SynthesisConfig `mapstructure:"synthesis"`
	Store          *StoreConfig     `mapstructure:"store"`
	AI             *AIConfig        `mapstructure:"ai"`
}

type ApplicantConfig struct {
	Interests         string `mapstructure:"interests"`
	InterestsFile     string `mapstructure:"interests-file"`
	ProgramConstraint string `mapstructure:"program-constraint"`
}

type HTTPConfig struct {
	UserAgent   string        `mapstructure:"user-agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max-attempts"`
}

type SearchConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	EngineID   string `mapstructure:"engine-id"`
	Results    int    `mapstructure:"results"`
}

type ScholarConfig struct {
	MinInterval      time.Duration `mapstructure:"min-interval"`
	MaxPapers        int           `mapstructure:"max-papers"`
	YearsBack        int           `mapstructure:"years-back"`
	ReputationPapers int           `mapstructure:"reputation-papers"`
	MaxAttempts      int           `mapstructure:"max-attempts"`
}

type SelectionConfig struct {
	MaxSelected   int  `mapstructure:"max-selected"`
	MaxConcurrent int  `mapstructure:"max-concurrent"`
	RecencyYears  int  `mapstructure:"recency-years"`
	MaxReputation int  `mapstructure:"max-reputation"`
	SkipReviews   bool `mapstructure:"skip-reviews"`
}

type SynthesisConfig struct {
	MaxAttempts int `mapstructure:"max-attempts"`
}

type StoreConfig struct {
	Path    string        `mapstructure:"path"`
	PageTTL time.Duration `mapstructure:"page-ttl"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string  `mapstructure:"api-key"`
	APIKeyFile   string  `mapstructure:"api-key-file"`
	Model        string  `mapstructure:"model"`
	ReviewModel  string  `mapstructure:"review-model"`
	MaxRetries   int     `mapstructure:"max-retries"`
	MaxLogLength int     `mapstructure:"max-log-length"`
	Temperature  float64 `mapstructure:"temperature"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "advisor-analyzer scores how well a faculty member fits a prospective PhD applicant",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is advisor-analyzer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("reports-dir", "reports")
	viper.SetDefault("conflict-policy", "suffix")
	viper.SetDefault("concurrency", 1)
	viper.SetDefault("run-timeout", 30*time.Minute)
	viper.SetDefault("http.timeout", 30*time.Second)
	viper.SetDefault("http.max-attempts", 3)
	viper.SetDefault("search.results", 5)
	viper.SetDefault("scholar.min-interval", 2*time.Second)
	viper.SetDefault("scholar.max-papers", 100)
	viper.SetDefault("scholar.years-back", 4)
	viper.SetDefault("scholar.reputation-papers", 3)
	viper.SetDefault("scholar.max-attempts", 4)
	viper.SetDefault("selection.max-selected", 6)
	viper.SetDefault("selection.max-concurrent", 5)
	viper.SetDefault("selection.recency-years", 3)
	viper.SetDefault("selection.max-reputation", 2)
	viper.SetDefault("synthesis.max-attempts", 3)
	viper.SetDefault("store.path", "data/advisor-analyzer.db")
	viper.SetDefault("store.page-ttl", 24*time.Hour)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 2000)
}

func initConfig() {
	// Secrets usually live in .env next to the config.
	if err := secrets.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Every setting has a default, so only an explicitly requested file is mandatory.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.Applicant == nil {
		config.Applicant = &ApplicantConfig{}
	}
	if config.HTTP == nil {
		config.HTTP = &HTTPConfig{}
	}
	if config.Search == nil {
		config.Search = &SearchConfig{}
	}
	if config.Scholar == nil {
		config.Scholar = &ScholarConfig{}
	}
	if config.Selection == nil {
		config.Selection = &SelectionConfig{}
	}
	if config.Synthesis == nil {
		config.Synthesis = &SynthesisConfig{}
	}
	if config.Store == nil {
		config.Store = &StoreConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}

	return config, nil
}
