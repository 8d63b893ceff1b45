package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"coineda/asset"
	"coineda/cache"
	"coineda/import/native"
	"coineda/importer"
	"coineda/logger"
	"coineda/portfolio"
	"coineda/price"
	"coineda/storage"
	"coineda/tax"
)

func main() {
	var (
		dbPath     = flag.String("db", "coineda.json", "path of the store snapshot")
		dir        = flag.String("dir", "", "import every recognized file under this directory")
		account    = flag.Int64("account", 1, "account id to import into and report on")
		year       = flag.Int("year", 0, "tax year to report, zero skips the report")
		exportPath = flag.String("export", "", "write the account to an interchange file")
		reportPath = flag.String("report", "", "write the tax report to an xlsx file")
		serve      = flag.Bool("serve", false, "run the HTTP API instead of the one-shot CLI")
		port       = flag.String("port", envOr("PORT", "8080"), "HTTP server port")
		baseURL    = flag.String("base-url", envOr("PRICE_API", price.DefaultBaseURL), "price API base URL")
	)
	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	store, err := storage.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("opening store")
	}
	if err := storage.Seed(store, asset.Defaults()); err != nil {
		log.Fatal().Err(err).Msg("seeding assets")
	}

	assets, err := store.Assets().GetAll()
	if err != nil {
		log.Fatal().Err(err).Msg("loading assets")
	}
	resolver := asset.NewResolver(assets)

	prices := price.NewOracle(cache.NewMemory(), log)
	prices.BaseURL = *baseURL

	imp := importer.New(store, resolver, prices, cache.NewMemory(), log)
	engine := tax.NewEngine(store, resolver, prices, log)
	calculator := &tax.Germany{Engine: engine}

	if *serve {
		runServer(ctx, *port, store, imp, calculator, log)
		return
	}

	if *dir != "" {
		files, err := findFiles(*dir)
		if err != nil {
			log.Fatal().Err(err).Msg("scanning import directory")
		}
		sum := imp.ImportFiles(ctx, files, *account)
		for _, e := range sum.Errors {
			log.Warn().Str("file", e.Filename).Str("kind", string(e.Kind)).Err(e.Err).Msg("import error")
		}
		log.Info().
			Int("inserts", sum.Inserts).
			Int("duplicates", sum.Duplicates).
			Int("errors", len(sum.Errors)).
			Msg("import finished")
		if err := store.Save(); err != nil {
			log.Fatal().Err(err).Msg("saving store")
		}
	}

	if *exportPath != "" {
		if err := exportAccount(store, *account, *exportPath); err != nil {
			log.Fatal().Err(err).Msg("exporting account")
		}
		log.Info().Str("file", *exportPath).Msg("account exported")
	}

	if *year != 0 {
		result, err := calculator.Calculate(ctx, *account, *year)
		if err != nil {
			log.Fatal().Err(err).Msg("tax calculation failed")
		}
		printResult(*year, result)

		if *reportPath != "" {
			r := NewReport(*reportPath)
			if err := writeTaxReport(r, *year, result); err != nil {
				log.Fatal().Err(err).Msg("writing tax report")
			}
			if err := r.Save(); err != nil {
				log.Fatal().Err(err).Msg("saving tax report")
			}
			log.Info().Str("file", *reportPath).Msg("tax report written")
		}
	}
}

// findFiles walks dir and collects every file an adapter could claim.
func findFiles(dir string) ([]portfolio.File, error) {
	var files []portfolio.File
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".cnd", ".csv", ".xlsx":
		default:
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, portfolio.File{Name: d.Name(), Data: data})
		return nil
	})
	return files, err
}

func exportAccount(store storage.Store, account int64, path string) error {
	transactions, err := store.Transactions().GetAllFromAccount(account)
	if err != nil {
		return err
	}
	transfers, err := store.Transfers().GetAllFromAccount(account)
	if err != nil {
		return err
	}
	return os.WriteFile(path, native.Export(transactions, transfers), 0o644)
}

func printResult(year int, r *tax.Result) {
	fmt.Printf("Tax year %d\n", year)
	fmt.Printf("Total gain: %.2f\n", r.TotalGain)
	if r.HasLoss {
		fmt.Println("The year closed with a loss, nothing to tax")
	}
	if r.IsBelowLimit {
		fmt.Println("Below the tax free limit")
	}
	fmt.Printf("Tax: %.2f\n", r.Tax)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
