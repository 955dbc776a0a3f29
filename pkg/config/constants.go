package config

const (
	EnvPrefix = "TRISIKHA"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv = "TRISIKHA_APP_ENV"
	EnvPort   = "TRISIKHA_APP_PORT"

	EnvDBDSN  = "TRISIKHA_DB_DSN"
	EnvDBHost = "TRISIKHA_DB_HOST"
	EnvDBUser = "TRISIKHA_DB_USER"
	EnvDBName = "TRISIKHA_DB_NAME"

	EnvRedisURL = "TRISIKHA_REDIS_URL"

	EnvAuthJWTSecret = "TRISIKHA_AUTH_JWT_SECRET"

	EnvRazorpayKeyID         = "TRISIKHA_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret     = "TRISIKHA_RAZORPAY_KEY_SECRET"
	EnvRazorpayWebhookSecret = "TRISIKHA_RAZORPAY_WEBHOOK_SECRET"

	EnvShiprocketEmail         = "TRISIKHA_SHIPROCKET_EMAIL"
	EnvShiprocketPassword      = "TRISIKHA_SHIPROCKET_PASSWORD"
	EnvShiprocketWebhookSecret = "TRISIKHA_SHIPROCKET_WEBHOOK_SECRET"
	EnvShiprocketPickupPincode = "TRISIKHA_SHIPROCKET_PICKUP_PINCODE"

	EnvInspectionBucket = "TRISIKHA_STORAGE_INSPECTION_BUCKET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
