package config

import (
	"fmt"
	"os"
)

const exampleConfig = `# buildrelay configuration
client_id: "acme"
environment: "production"

server:
  listen_addr: ":8080"
  admin_addr: ":9090"

store:
  path: "buildrelay.db"

# Webhook secrets per provider. Use ${VAR} to pull from the environment
# (a .env file beside the binary is loaded automatically).
providers:
  - name: contentful
    secret: ${CONTENTFUL_WEBHOOK_SECRET}
  - name: shopify
    secret: ${SHOPIFY_WEBHOOK_SECRET}

gate:
  max_timestamp_skew: 5m
  receipt_ttl: 24h
  allow_unknown_providers: false

batching:
  immediate_build_threshold: 3
  max_batch_size: 50
  max_batch_age: 10m
  normal_window: 30s
  bulk_window: 60s

nats:
  enabled: false
  url: "nats://localhost:4222"
  subject_prefix: "content.events"

build:
  endpoint: "https://builds.example.com/api/builds"
  token: ${BUILD_SERVICE_TOKEN}
  timeout: 30s
  full_rebuild_threshold: 100

metrics:
  enabled: true

logging:
  level: info
  format: json
`

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
