package cache

import "fmt"

func TenantKey(entityID string) string {
	return fmt.Sprintf("tenant:entity:%s", entityID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
