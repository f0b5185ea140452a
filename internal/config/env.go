// Package config provides environment helpers for go-distillo commands.
package config

import (
	"net"
	"os"
	"strconv"
	"time"
)

// Default ESP configuration, matching the board's access-point setup.
const (
	DefaultEspHost      = "172.20.10.2"
	DefaultEspAudioPort = 1234
	DefaultEspCtrlPort  = 2345
)

// EspHost returns the ESP host from the ESP_HOST env var.
// Falls back to the provided default if not set.
func EspHost(defaultHost string) string {
	if host := os.Getenv("ESP_HOST"); host != "" {
		return host
	}
	return defaultHost
}

// Addr joins a host and port into a dialable address.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// String returns the value of key, or def if unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the integer value of key, or def if unset or malformed.
func Int(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns the float value of key, or def if unset or malformed.
func Float(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Duration returns the duration value of key, or def if unset or malformed.
func Duration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
