package config

// BridgeConfig is the root configuration for the bridge, covering every
// subsystem's settings. It is read once at startup via Load; the Redis
// block is projected into cache.Config with github.com/jinzhu/copier, and
// the other subsystems' Config values are filled in field by field.
type BridgeConfig struct {
	Chain struct {
		RPCURL              string `toml:"rpc_url" env:"BRIDGE_CHAIN_RPC_URL"`
		OperatorPrivateKey  string `toml:"operator_private_key" env:"BRIDGE_OPERATOR_PRIVATE_KEY"`
		OperatorKeyPassword string `toml:"operator_key_password" env:"BRIDGE_OPERATOR_KEY_PASSWORD"`
		EscrowAddress       string `toml:"escrow_address" env:"BRIDGE_ESCROW_ADDRESS"`
		TokenAddress        string `toml:"token_address" env:"BRIDGE_TOKEN_ADDRESS"`
		TokenDecimals       int    `toml:"token_decimals" env:"BRIDGE_TOKEN_DECIMALS" env-default:"8"`
		OperatorAddress     string `toml:"operator_address" env:"BRIDGE_OPERATOR_ADDRESS"`
		RequestTimeoutMs    int    `toml:"request_timeout_ms" env:"BRIDGE_CHAIN_REQUEST_TIMEOUT_MS" env-default:"10000"`
	} `toml:"chain"`

	Lightning struct {
		RESTURL          string `toml:"rest_url" env:"BRIDGE_LIGHTNING_REST_URL"`
		AuthTokenPath    string `toml:"auth_token_path" env:"BRIDGE_LIGHTNING_AUTH_TOKEN_PATH"`
		RequestTimeoutMs int    `toml:"request_timeout_ms" env:"BRIDGE_LIGHTNING_REQUEST_TIMEOUT_MS" env-default:"10000"`
	} `toml:"lightning"`

	TagSecret string `toml:"tag_secret" env:"BRIDGE_TAG_SECRET"`

	MaxFeePercent      float64 `toml:"max_fee_percent" env:"BRIDGE_MAX_FEE_PERCENT" env-default:"0.5"`
	PayRetryForSeconds int     `toml:"pay_retry_for_seconds" env:"BRIDGE_PAY_RETRY_FOR_SECONDS" env-default:"30"`

	CreditMonitor struct {
		IntervalMs int `toml:"invoice_monitor_interval_ms" env:"BRIDGE_INVOICE_MONITOR_INTERVAL_MS" env-default:"15000"`
		RetryMs    int `toml:"invoice_monitor_retry_ms" env:"BRIDGE_INVOICE_MONITOR_RETRY_MS" env-default:"60000"`
		StaleMs    int `toml:"invoice_monitor_stale_ms" env:"BRIDGE_INVOICE_MONITOR_STALE_MS" env-default:"300000"`
	} `toml:"credit_monitor"`

	DataFilePath        string `toml:"data_file_path" env:"BRIDGE_DATA_FILE_PATH" env-default:"./data/bridge.json"`
	ListenPort          string `toml:"listen_port" env:"BRIDGE_LISTEN_PORT" env-default:"8080"`
	OperatorServicePort string `toml:"operator_service_port" env:"BRIDGE_OPERATOR_SERVICE_PORT" env-default:"9090"`

	Redis struct {
		Host     string `toml:"host" env:"BRIDGE_REDIS_HOST"`
		Port     string `toml:"port" env:"BRIDGE_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"BRIDGE_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"BRIDGE_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	Environment string `toml:"environment" env:"BRIDGE_ENVIRONMENT" env-default:"production"`
}
