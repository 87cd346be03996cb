package config

// defaults is the base configuration layer. The sqlite in-memory DSN
// makes a bare `Load("")` usable in tests and local tooling.
func defaults() map[string]any {
	return map[string]any{
		"backend.dialect":        "sqlite",
		"backend.dsn":            "file:loam?mode=memory&cache=shared",
		"pool.max_open":          8,
		"pool.max_idle":          4,
		"pool.conn_max_lifetime": "30m",
		"pool.checkout_timeout":  "5s",
		"pool.retry_checkout":    0,
		"migration.lock_wait":    "0s",
	}
}
