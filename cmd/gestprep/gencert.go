// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	xgtls "github.com/ManuGH/gestprep/internal/tls"
)

var gencertOpts struct {
	cert  string
	key   string
	years int
	hosts []string
}

var gencertCmd = &cobra.Command{
	Use:   "gencert",
	Short: "Generate a self-signed certificate for the backend",
	Long: `Writes a self-signed certificate and key covering localhost, 127.0.0.1
and the extra hosts given. Existing files are replaced.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var ips []net.IP
		var dns []string
		for _, h := range gencertOpts.hosts {
			if ip := net.ParseIP(h); ip != nil {
				ips = append(ips, ip)
			} else {
				dns = append(dns, h)
			}
		}
		if err := xgtls.GenerateSelfSigned(gencertOpts.cert, gencertOpts.key, gencertOpts.years, ips, dns); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", gencertOpts.cert, gencertOpts.key)
		return nil
	},
}

func init() {
	f := gencertCmd.Flags()
	f.StringVar(&gencertOpts.cert, "cert", xgtls.DefaultCertPath, "certificate output path")
	f.StringVar(&gencertOpts.key, "key", xgtls.DefaultKeyPath, "private key output path")
	f.IntVar(&gencertOpts.years, "years", xgtls.DefaultValidityYears, "validity in years")
	f.StringSliceVar(&gencertOpts.hosts, "host", nil, "extra DNS name or IP (repeatable)")
}
