package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evfleet/station-simulator/internal/config"
	"github.com/evfleet/station-simulator/internal/station"
)

// templatecheck loads every station template under a directory (or a single
// file), prints its resolved identity hash and connector layout, and
// reports every template that fails to load, exiting non-zero if any did,
// without starting anything. Analogous to
// cmd/debug-config: a dry-run dump, not a daemon.
func main() {
	fmt.Println("=== Station Template Check ===")

	fmt.Println("\n--- Loading Configuration ---")
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	dir := cfg.Supervisor.TemplateDir
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	fmt.Printf("Template directory: %s\n", dir)

	paths, err := templatePaths(dir)
	if err != nil {
		fmt.Printf("Error listing templates: %v\n", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Println("No *.json templates found.")
		os.Exit(1)
	}

	fmt.Println("\n--- Templates ---")
	failures := 0
	for _, p := range paths {
		tpl, err := station.LoadTemplate(p)
		if err != nil {
			fmt.Printf("%s: ERROR %v\n", p, err)
			failures++
			continue
		}

		authCount := 0
		if tpl.AuthorizationListFile != "" {
			tags, err := station.LoadAuthorizationList(tpl.AuthorizationListFile)
			if err != nil {
				fmt.Printf("%s: ERROR loading authorization list: %v\n", p, err)
				failures++
				continue
			}
			authCount = len(tags)
		}

		fmt.Printf("%s: stationId=%s hashId=%s connectors=%d supervisionUrls=%v authTags=%d atg=%v\n",
			p, tpl.StationId, tpl.HashId(), tpl.NumberOfConnectors, tpl.SupervisionUrls, authCount, tpl.ATG != nil && tpl.ATG.Enabled)
	}

	fmt.Printf("\n%d template(s) checked, %d failure(s)\n", len(paths), failures)
	if failures > 0 {
		os.Exit(1)
	}
}

func templatePaths(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
