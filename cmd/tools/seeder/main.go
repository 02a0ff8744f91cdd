package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/alexedwards/argon2id"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedUsers(db)
	seedTariffs(db)
	seedRecords(db)

	log.Println("Seeding completed successfully!")
}

func seedUsers(db *sql.DB) {
	fmt.Println("Seeding Users...")

	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "cambiar-ahora"
	}
	users := []struct {
		Username   string
		Password   string
		Role       string
		MustChange bool
	}{
		{"admin", adminPassword, "admin", true},
		{"operaciones", "operaciones123", "user", true},
	}

	for _, u := range users {
		hash, err := argon2id.CreateHash(u.Password, argon2id.DefaultParams)
		if err != nil {
			log.Printf("Failed to hash password for %s: %v", u.Username, err)
			continue
		}
		_, err = db.Exec(`
			INSERT INTO users (username, password_hash, role, must_change_password)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (username) DO NOTHING;
		`, u.Username, hash, u.Role, u.MustChange)
		if err != nil {
			log.Printf("Failed to seed user %s: %v", u.Username, err)
		}
	}
}

func seedTariffs(db *sql.DB) {
	fmt.Println("Seeding Tariffs...")

	type rule struct {
		Company  string
		Concept  string
		Type     string
		Price    float64
		MinPrice *float64
		RangeMin *float64
		RangeMax *float64
	}
	fl := func(v float64) *float64 { return &v }

	year := 2026
	rules := []rule{
		// Swissport: three free days, billing only the overage.
		{"Swissport", "CONFIG_FREE_DAYS", "config", 3, nil, nil, nil},
		{"Swissport", "CONFIG_CHARGE_MODE", "config", 0, nil, nil, nil},
		{"Swissport", "Gestión Documental", "fixed", 14.50, nil, nil, nil},
		{"Swissport", "Almacenaje mínimo por día", "fixed", 12.00, nil, nil, nil},
		{"Swissport", "Almacenaje por tramo de 100 kg", "per_kg", 2.10, fl(12.00), nil, nil},
		{"Swissport", "Acceso recinto aduanero", "fixed", 9.80, nil, nil, nil},
		{"Swissport", "Tasa energía y mantenimiento", "fixed", 6.40, nil, nil, nil},
		{"Swissport", "Handling express mínimo", "fixed", 78.30, nil, nil, nil},
		{"Swissport", "Carga/descarga camión", "fixed", 74.00, nil, nil, nil},
		{"Swissport", "Apertura fuera de horario", "fixed", 102.50, nil, nil, nil},
		{"Swissport", "Entrega fin de semana o festivo", "fixed", 151.20, nil, nil, nil},

		// Groundforce: two free days, billing every day once exceeded.
		{"Groundforce", "CONFIG_FREE_DAYS", "config", 2, nil, nil, nil},
		{"Groundforce", "CONFIG_CHARGE_MODE", "config", 1, nil, nil, nil},
		{"Groundforce", "Gestión documental", "fixed", 13.75, nil, nil, nil},
		{"Groundforce", "Almacenaje por día y tramo", "per_kg", 1.95, fl(11.00), nil, nil},
		{"Groundforce", "Acceso recinto", "fixed", 9.20, nil, nil, nil},
		{"Groundforce", "Tasa energía", "fixed", 5.90, nil, nil, nil},
		{"Groundforce", "Extracargo Groundforce", "fixed", 18.00, nil, nil, nil},
		{"Groundforce", "Handling express", "fixed", 72.60, nil, nil, nil},
		{"Groundforce", "Handling por kg", "per_kg", 0.21, fl(48.00), nil, fl(500)},
	}

	for _, r := range rules {
		_, err := db.Exec(`
			INSERT INTO tariffs (handling_company, year, concept, price_type, price_per_unit, min_price, weight_range_min, weight_range_max)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (handling_company, year, concept, weight_range_min, weight_range_max)
			DO UPDATE SET price_type = EXCLUDED.price_type, price_per_unit = EXCLUDED.price_per_unit, min_price = EXCLUDED.min_price;
		`, r.Company, year, r.Concept, r.Type, r.Price, r.MinPrice, r.RangeMin, r.RangeMax)
		if err != nil {
			log.Printf("Failed to seed tariff %s/%s: %v", r.Company, r.Concept, err)
		}
	}
}

func seedRecords(db *sql.DB) {
	fmt.Println("Seeding Records...")

	records := []struct {
		AWB       string
		Recipient string
		Weight    float64
		Packages  int
		Year      int
		Data      string
	}{
		{"125-48271635", "Acme Imports SL", 420.5, 3, 2026,
			`{"handling":"Swissport","airport":"MAD","status":"En almacén","packages":3,"arrival_date":"2026-08-20","arrived_at_airport":true}`},
		{"125-48271646", "Frutas del Sur SA", 180.0, 2, 2026,
			`{"handling":"Groundforce","airport":"BCN","status":"Entregado","packages":2,"arrival_date":"2026-07-02","pickup_date":"2026-07-04","arrived_at_airport":true,"pickup_confirmed":true,"billing_confirmed":true}`},
		{"125-48271650", "Electrónica Vega SL", 55.2, 1, 2026,
			`{"handling":"Swissport","airport":"MAD","status":"Pendiente","packages":1}`},
	}

	for _, r := range records {
		_, err := db.Exec(`
			INSERT INTO cargo_records (awb, recipient, weight, packages, year, data)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb)
			ON CONFLICT (awb) DO NOTHING;
		`, r.AWB, r.Recipient, r.Weight, r.Packages, r.Year, r.Data)
		if err != nil {
			log.Printf("Failed to seed record %s: %v", r.AWB, err)
		}
	}
}
