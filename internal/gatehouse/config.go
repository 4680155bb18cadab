// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
)

// SetTaskName identifies the subcommand in the version string and writes the
// startup log line.
func SetTaskName(taskName string) {
	bininfo.SetTaskName(taskName)
	logg.Info("starting %s %s", bininfo.Component(), bininfo.VersionOr("rolling"))
}

// AuthProviderConfig describes one identity provider scope of a deployment.
type AuthProviderConfig struct {
	// ID is the provider identifier that appears in API paths.
	ID string
	// DriverType selects the AuthDriver plugin for this provider.
	DriverType string
}

// Configuration contains all configuration values that are not specific to a
// certain driver.
type Configuration struct {
	APIPublicHostname string
	SessionTimeout    time.Duration
	AuthProviders     []AuthProviderConfig
}

// ParseConfiguration obtains a gatehouse.Configuration instance from the
// corresponding environment variables. Aborts on error.
func ParseConfiguration() Configuration {
	logg.Debug("parsing configuration...")

	cfg := Configuration{
		APIPublicHostname: osext.MustGetenv("GATEHOUSE_API_PUBLIC_FQDN"),
		SessionTimeout:    time.Hour,
	}

	if timeoutStr := os.Getenv("GATEHOUSE_SESSION_TIMEOUT"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil || timeout <= 0 {
			logg.Fatal("malformed GATEHOUSE_SESSION_TIMEOUT: %q", timeoutStr)
		}
		cfg.SessionTimeout = timeout
	}

	// e.g. GATEHOUSE_AUTH_PROVIDERS="corp:static,lab:static"
	for _, field := range strings.Split(osext.MustGetenv("GATEHOUSE_AUTH_PROVIDERS"), ",") {
		field = strings.TrimSpace(field)
		providerID, driverType, ok := strings.Cut(field, ":")
		if !ok || providerID == "" || driverType == "" {
			logg.Fatal("malformed entry in GATEHOUSE_AUTH_PROVIDERS: %q", field)
		}
		for _, other := range cfg.AuthProviders {
			if other.ID == providerID {
				logg.Fatal("duplicate provider %q in GATEHOUSE_AUTH_PROVIDERS", providerID)
			}
		}
		cfg.AuthProviders = append(cfg.AuthProviders, AuthProviderConfig{
			ID:         providerID,
			DriverType: driverType,
		})
	}

	return cfg
}

// GetDatabaseURLFromEnvironment reads the GATEHOUSE_DB_* environment variables.
func GetDatabaseURLFromEnvironment() (dbURL url.URL, dbName string) {
	dbName = osext.GetenvOrDefault("GATEHOUSE_DB_NAME", "gatehouse")
	return must.Return(easypg.URLFrom(easypg.URLParts{
		HostName:          osext.GetenvOrDefault("GATEHOUSE_DB_HOSTNAME", "localhost"),
		Port:              osext.GetenvOrDefault("GATEHOUSE_DB_PORT", "5432"),
		UserName:          osext.GetenvOrDefault("GATEHOUSE_DB_USERNAME", "postgres"),
		Password:          os.Getenv("GATEHOUSE_DB_PASSWORD"),
		ConnectionOptions: os.Getenv("GATEHOUSE_DB_CONNECTION_OPTIONS"),
		DatabaseName:      dbName,
	})), dbName
}

// GetRedisOptions returns a redis.Options by getting the required parameters
// from environment variables:
//
//	REDIS_PASSWORD, REDIS_HOSTNAME, REDIS_PORT, and REDIS_DB_NUM.
//
// The environment variable keys are prefixed with the provided prefix.
func GetRedisOptions(prefix string) (*redis.Options, error) {
	pass := os.Getenv(prefix + "_PASSWORD")
	host := osext.GetenvOrDefault(prefix+"_HOSTNAME", "localhost")
	port := osext.GetenvOrDefault(prefix+"_PORT", "6379")
	dbNum := osext.GetenvOrDefault(prefix+"_DB_NUM", "0")
	db, err := strconv.Atoi(dbNum)
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s: %q", prefix+"_DB_NUM", dbNum)
	}

	return &redis.Options{
		Network:    "tcp",
		Password:   pass,
		Addr:       net.JoinHostPort(host, port),
		ClientName: bininfo.Component(),
		DB:         db,
	}, nil
}
