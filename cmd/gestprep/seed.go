// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/gestprep/internal/accounts"
	"github.com/ManuGH/gestprep/internal/auth"
	"github.com/ManuGH/gestprep/internal/inventory"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/store"
)

// errAlreadySeeded is returned when the catalog already holds sites.
var errAlreadySeeded = errors.New("database already holds catalog data")

type seedOptions struct {
	managerEmail    string
	managerPassword string
	department      string
}

var seedOpts seedOptions

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate an empty database with demo data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		opts := seedOpts
		if opts.department == "" {
			opts.department = cfg.Auth.ManagerDepartment
		}
		summary, err := seed(ctx, st, opts)
		if err != nil {
			return err
		}
		logger := xglog.WithComponent("seed")
		logger.Info().Str("event", "seed.done").Msg(summary)
		fmt.Fprintln(cmd.OutOrStdout(), summary)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedOpts.managerEmail, "manager-email", "", "also create a verified manager account with this email")
	seedCmd.Flags().StringVar(&seedOpts.managerPassword, "manager-password", "", "password of the manager account")
	seedCmd.Flags().StringVar(&seedOpts.department, "department", "", "department of the manager account (default auth.managerDepartment)")
}

func ptr[T any](v T) *T { return &v }

// seed writes a small plant hierarchy, a store room with articles (one of
// them in alert) and a phase with one platinage.
func seed(ctx context.Context, st *store.Store, opts seedOptions) (string, error) {
	c := st.Catalog()
	existing, err := c.Sites.List(ctx, store.ListParams{PageSize: 1})
	if err != nil {
		return "", err
	}
	if existing.Count > 0 {
		return "", errAlreadySeeded
	}

	site := inventory.Site{Nom: "Skikda", Description: ptr("Complexe GL1K")}
	if err := c.Sites.Create(ctx, &site); err != nil {
		return "", fmt.Errorf("site: %w", err)
	}
	unite := inventory.Unite{Nom: "Unité 10", Site: site.ID}
	if err := c.Unites.Create(ctx, &unite); err != nil {
		return "", fmt.Errorf("unite: %w", err)
	}

	var equipements []inventory.Equipement
	for i, name := range []string{"Train 100", "Train 200"} {
		train := inventory.Train{Nom: name, Unite: unite.ID}
		if err := c.Trains.Create(ctx, &train); err != nil {
			return "", fmt.Errorf("train: %w", err)
		}
		for _, kind := range []string{"P", "E"} {
			e := inventory.Equipement{
				Tag:         fmt.Sprintf("%d-%s-%02d", (i+1)*100, kind, 1),
				Description: map[string]string{"P": "Pompe de charge", "E": "Échangeur"}[kind],
				Train:       train.ID,
			}
			if err := c.Equipements.Create(ctx, &e); err != nil {
				return "", fmt.Errorf("equipement: %w", err)
			}
			equipements = append(equipements, e)
		}
	}

	stock := inventory.Stock{Nom: "Magasin central", Site: site.ID, TypeStock: inventory.StockMagasin, Emplacement: "Bâtiment A"}
	if err := c.Stocks.Create(ctx, &stock); err != nil {
		return "", fmt.Errorf("stock: %w", err)
	}
	joints := inventory.CategorieArticle{Nom: "Joints"}
	brides := inventory.CategorieArticle{Nom: "Brides pleines"}
	for _, cat := range []*inventory.CategorieArticle{&joints, &brides} {
		if err := c.Categories.Create(ctx, cat); err != nil {
			return "", fmt.Errorf("categorie: %w", err)
		}
	}

	eur := inventory.EUR
	articles := []inventory.Article{
		{CodeArticle: "JT-SPI-04", Description: "Joint spiralé 4\" 300#", CategorieArticle: joints.ID,
			UniteMesure: "u", QuantiteInitiale: inventory.D(40), QuantiteStock: inventory.D(40), SeuilAlerte: inventory.D(10),
			Prix: ptr(inventory.MustDecimal("12.50")), Devise: &eur},
		{CodeArticle: "JT-SPI-08", Description: "Joint spiralé 8\" 300#", CategorieArticle: joints.ID,
			UniteMesure: "u", QuantiteInitiale: inventory.D(5), QuantiteStock: inventory.D(5), SeuilAlerte: inventory.D(5)},
		{CodeArticle: "BP-04-300", Description: "Bride pleine 4\" 300#", CategorieArticle: brides.ID,
			UniteMesure: "u", QuantiteInitiale: inventory.D(12), QuantiteStock: inventory.D(12), SeuilAlerte: inventory.D(2)},
	}
	for i := range articles {
		articles[i].Stock = stock.ID
		if err := c.Articles.Create(ctx, &articles[i]); err != nil {
			return "", fmt.Errorf("article %s: %w", articles[i].CodeArticle, err)
		}
	}

	tp := inventory.TypePlatinage{Nom: "Isolement"}
	if err := c.TypesPlatinage.Create(ctx, &tp); err != nil {
		return "", fmt.Errorf("type platinage: %w", err)
	}
	start := time.Now().UTC().Truncate(time.Hour)
	plat := inventory.Platinage{
		Equipement: equipements[0].ID, Article: articles[2].ID, TypePlatinage: tp.ID,
		Repere: "PL-001", DateDebut: &start,
	}
	if err := c.Platinages.Create(ctx, &plat); err != nil {
		return "", fmt.Errorf("platinage: %w", err)
	}
	phase := inventory.Phase{Nom: "Arrêt annuel", Platinages: []int64{plat.ID}}
	if err := c.Phases.Create(ctx, &phase); err != nil {
		return "", fmt.Errorf("phase: %w", err)
	}

	summary := fmt.Sprintf("seeded 1 site, 2 trains, %d equipements, %d articles, 1 phase", len(equipements), len(articles))
	if opts.managerEmail == "" {
		return summary, nil
	}
	if err := seedManager(ctx, st, opts); err != nil {
		return "", err
	}
	return summary + ", manager " + opts.managerEmail, nil
}

func seedManager(ctx context.Context, st *store.Store, opts seedOptions) error {
	if opts.managerPassword == "" {
		return errors.New("--manager-password is required with --manager-email")
	}
	hash, err := auth.HashPassword(opts.managerPassword)
	if err != nil {
		return err
	}
	local, _, _ := strings.Cut(opts.managerEmail, "@")
	u := accounts.User{
		Email:         opts.managerEmail,
		Username:      local,
		EmployeeID:    "ADM-" + strings.ToUpper(local),
		Department:    opts.department,
		PasswordHash:  hash,
		EmailVerified: true,
		IsManager:     true,
		IsActive:      true,
	}
	if err := st.CreateUser(ctx, &u); err != nil {
		return fmt.Errorf("manager account: %w", err)
	}
	return nil
}
