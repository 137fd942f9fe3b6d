package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlxDB.Close()

		db, err := initGorm(sqlxDB)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			tables := []string{
				"invoice_payments", "invoice_items", "invoices",
				"budget_revision_approval_steps", "budget_revisions",
				"expense_approval_steps", "expenses",
				"budget_categories", "budgets", "taxes",
			}
			for _, table := range tables {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		taxes := []struct {
			Name string
			Rate string
		}{
			{"VAT", "11"},
			{"Service Charge", "5"},
			{"Withholding", "2"},
		}

		for _, t := range taxes {
			var exists int
			row := db.Raw("SELECT 1 FROM taxes WHERE name = ?", t.Name).Row()
			if err := row.Scan(&exists); err == nil {
				continue
			}
			if err := db.Exec("INSERT INTO taxes (name, rate, is_active, created_at, updated_at) VALUES (?, ?, true, now(), now())", t.Name, t.Rate).Error; err != nil {
				log.Fatalf("failed to insert tax %s: %v", t.Name, err)
			}
			fmt.Println("Seeded tax:", t.Name)
		}

		var budgetID int64
		row := db.Raw("SELECT id FROM budgets WHERE project_id = ? AND name = ?", 1, "Website Relaunch").Row()
		if err := row.Scan(&budgetID); err != nil {
			err := db.Raw(
				"INSERT INTO budgets (project_id, name, total_amount, period_type, status, starts_on, created_at, updated_at) VALUES (?, ?, ?, ?, ?, now(), now(), now()) RETURNING id",
				1, "Website Relaunch", "25000.00", "project", "active",
			).Row().Scan(&budgetID)
			if err != nil {
				log.Fatalf("failed to insert sample budget: %v", err)
			}
			fmt.Println("Seeded budget: Website Relaunch")
		}

		categories := []struct {
			Name      string
			Allocated string
		}{
			{"Design", "8000.00"},
			{"Development", "12000.00"},
			{"Infrastructure", "5000.00"},
		}

		for i, c := range categories {
			var exists int
			row := db.Raw("SELECT 1 FROM budget_categories WHERE budget_id = ? AND name = ?", budgetID, c.Name).Row()
			if err := row.Scan(&exists); err == nil {
				continue
			}
			if err := db.Exec(
				"INSERT INTO budget_categories (budget_id, name, allocated_amount, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, now(), now())",
				budgetID, c.Name, c.Allocated, i,
			).Error; err != nil {
				log.Fatalf("failed to insert category %s: %v", c.Name, err)
			}
			fmt.Println("Seeded category:", c.Name)
		}

		fmt.Println("Seeding complete")
	},
}
