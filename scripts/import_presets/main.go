package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/internal/repositories"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Imports preset phrases from an xlsx file into the device database.
// Expected columns: Text, Category, SortOrder. The first row is a
// header.
//
// Usage: go run ./scripts/import_presets phrases.xlsx
func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if len(os.Args) < 2 {
		log.Fatal("usage: import_presets <file.xlsx>")
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/social.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect database:", err)
	}
	if err := db.AutoMigrate(&models.PresetPhrase{}); err != nil {
		log.Fatal("failed to migrate:", err)
	}

	f, err := excelize.OpenFile(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	repo := repositories.NewPresetRepository(db)
	totalImported := 0
	totalSkipped := 0

	for _, sheetName := range f.GetSheetList() {
		fmt.Printf("Importing sheet: %s\n", sheetName)
		rows, err := f.GetRows(sheetName)
		if err != nil {
			fmt.Printf("Error reading sheet %s: %v\n", sheetName, err)
			continue
		}

		for i, row := range rows {
			if i == 0 || len(row) < 1 { // Skip header or empty rows
				continue
			}

			text := strings.TrimSpace(row[0])
			if text == "" {
				continue
			}

			category := "general"
			if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
				category = strings.TrimSpace(row[1])
			}

			sortOrder := 0
			if len(row) > 2 {
				if n, err := strconv.Atoi(strings.TrimSpace(row[2])); err == nil {
					sortOrder = n
				}
			}

			created, err := repo.Upsert(&models.PresetPhrase{
				Text:      text,
				Category:  category,
				SortOrder: sortOrder,
			})
			if err != nil {
				fmt.Printf("Error importing row %d: %v\n", i, err)
				continue
			}
			if created {
				totalImported++
			} else {
				totalSkipped++
			}
		}
	}

	fmt.Printf("Done. Imported %d presets, skipped %d duplicates.\n", totalImported, totalSkipped)
}
