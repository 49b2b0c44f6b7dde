package config

type Config struct {
	Port                     string      `json:"port"`
	JWTSecret                string      `json:"jwt_secret"`
	MaxUploadSize            int64       `json:"max_upload_size"`
	TrendingRefreshInterval  int         `json:"trending_refresh_interval"`
	Redis                    RedisConfig `json:"redis"`
	S3                       S3Config    `json:"s3"`
	RateLimit                struct {
		Requests int `json:"requests"`
		Duration int `json:"duration"`
	} `json:"rate_limit"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
	// PublicBaseURL is prepended to object keys to build the stored image
	// URL. Defaults to the endpoint + bucket when empty.
	PublicBaseURL string `json:"public_base_url"`
}

// MaxUploadSizeOrDefault falls back to the 10 MiB cap when unset.
func (c *Config) MaxUploadSizeOrDefault() int64 {
	if c.MaxUploadSize > 0 {
		return c.MaxUploadSize
	}
	return 10 << 20
}
