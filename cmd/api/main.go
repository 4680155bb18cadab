// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package apicmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/httpapi/pprofapi"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/jobloop"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"

	connectionsv1 "github.com/sapcc/gatehouse/internal/api/connections"
	tokensv1 "github.com/sapcc/gatehouse/internal/api/tokens"
	"github.com/sapcc/gatehouse/internal/gatehouse"
	"github.com/sapcc/gatehouse/internal/tasks"
)

// AddCommandTo mounts this command into the command hierarchy.
func AddCommandTo(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Run the gatehouse-api server component.",
		Long:  "Run the gatehouse-api server component. Configuration is read from environment variables as described in README.md.",
		Args:  cobra.NoArgs,
		Run:   run,
	}
	parent.AddCommand(cmd)
}

func run(cmd *cobra.Command, args []string) {
	_, _ = cmd, args

	gatehouse.SetTaskName("api")

	cfg := gatehouse.ParseConfiguration()
	ctx := httpext.ContextWithSIGINT(cmd.Context(), 10*time.Second)
	auditor := must.Return(gatehouse.InitAuditTrail(ctx))

	// the memory directory driver is the only one that runs without a database
	dirDriverType := osext.GetenvOrDefault("GATEHOUSE_DRIVER_DIRECTORY", "postgres")
	var db *gatehouse.DB
	if dirDriverType != "memory" {
		dbURL, dbName := gatehouse.GetDatabaseURLFromEnvironment()
		dbConn := must.Return(easypg.Connect(dbURL, gatehouse.DBConfiguration()))
		prometheus.MustRegister(sqlstats.NewStatsCollector(dbName, dbConn))
		db = gatehouse.InitORM(dbConn)
	}
	dd := must.Return(gatehouse.NewDirectoryDriver(dirDriverType, db))

	rc := must.Return(initRedis())
	authDrivers := make(map[string]gatehouse.AuthDriver, len(cfg.AuthProviders))
	for _, provider := range cfg.AuthProviders {
		authDrivers[provider.ID] = must.Return(gatehouse.NewAuthDriver(provider.DriverType, provider.ID, rc))
	}

	sessions := gatehouse.NewSessionRegistry(cfg.SessionTimeout, nil)

	// start background goroutines
	janitor := tasks.NewJanitor(sessions)
	go janitor.SessionSweepJob(nil).Run(ctx, jobloop.WithLabel("task", "sweep-sessions"))

	// wire up HTTP handlers
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"HEAD", "GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "User-Agent", "Authorization", "X-Auth-Token"},
	})
	handler := httpapi.Compose(
		connectionsv1.NewAPI(cfg, sessions, auditor),
		tokensv1.NewAPI(cfg, authDrivers, dd, sessions),
		httpapi.HealthCheckAPI{
			SkipRequestLog: true,
			Check: func() error {
				if db == nil {
					return nil
				}
				return db.Db.PingContext(ctx)
			},
		},
		httpapi.WithGlobalMiddleware(corsMiddleware.Handler),
		pprofapi.API{IsAuthorized: pprofapi.IsRequestFromLocalhost},
	)
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", promhttp.Handler())

	// start HTTP server
	apiListenAddress := osext.GetenvOrDefault("GATEHOUSE_API_LISTEN_ADDRESS", ":8080")
	must.Succeed(httpext.ListenAndServeContext(ctx, apiListenAddress, mux))
}

// Note that, since Redis is optional, this may return (nil, nil).
func initRedis() (*redis.Client, error) {
	if !osext.GetenvBool("GATEHOUSE_REDIS_ENABLE") {
		return nil, nil
	}
	logg.Debug("initializing Redis connection...")

	opts, err := gatehouse.GetRedisOptions("GATEHOUSE_REDIS")
	if err != nil {
		return nil, fmt.Errorf("cannot parse Redis URL: %s", err.Error())
	}
	return redis.NewClient(opts), nil
}
