// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"

	apicmd "github.com/sapcc/gatehouse/cmd/api"

	// include all known driver implementations
	_ "github.com/sapcc/gatehouse/internal/drivers/memory"
	_ "github.com/sapcc/gatehouse/internal/drivers/postgres"
	_ "github.com/sapcc/gatehouse/internal/drivers/static"
)

func main() {
	logg.ShowDebug = osext.GetenvBool("GATEHOUSE_DEBUG")

	rootCmd := &cobra.Command{
		Use:     "gatehouse",
		Short:   "Multi-tenant remote-access gateway",
		Long:    "Gatehouse is the connection directory of a multi-tenant remote-access gateway.",
		Version: bininfo.VersionOr("rolling"),
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Server commands.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	apicmd.AddCommandTo(serverCmd)
	rootCmd.AddCommand(serverCmd)

	if err := rootCmd.Execute(); err != nil {
		logg.Fatal(err.Error())
	}
}
