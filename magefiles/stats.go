package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// pkgStats is the line and test count of one package directory.
type pkgStats struct {
	Package   string  `json:"package"`
	ProdLines int     `json:"prod_loc"`
	TestLines int     `json:"test_loc"`
	Tests     int     `json:"tests"`
	Ratio     float64 `json:"test_ratio"`
}

// Stats prints one JSON line per package with production and test lines,
// the number of Test functions and the test/prod line ratio, then a
// totals line. Packages without tests are listed under "untested".
func Stats() error {
	byPkg := map[string]*pkgStats{}

	err := filepath.WalkDir(".", func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			switch path {
			case "vendor", ".git", binaryDir, "_examples", "magefiles":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		lines, tests, countErr := countFile(path)
		if countErr != nil {
			return nil
		}

		dir := filepath.ToSlash(filepath.Dir(path))
		ps, ok := byPkg[dir]
		if !ok {
			ps = &pkgStats{Package: dir}
			byPkg[dir] = ps
		}
		if strings.HasSuffix(path, "_test.go") {
			ps.TestLines += lines
			ps.Tests += tests
		} else {
			ps.ProdLines += lines
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(byPkg))
	for dir := range byPkg {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	total := pkgStats{Package: "total"}
	var untested []string
	for _, dir := range dirs {
		ps := byPkg[dir]
		ps.Ratio = ratio(ps.TestLines, ps.ProdLines)
		if ps.Tests == 0 {
			untested = append(untested, dir)
		}
		total.ProdLines += ps.ProdLines
		total.TestLines += ps.TestLines
		total.Tests += ps.Tests
		if err := printJSON(ps); err != nil {
			return err
		}
	}
	total.Ratio = ratio(total.TestLines, total.ProdLines)

	return printJSON(struct {
		pkgStats
		Packages int      `json:"packages"`
		Untested []string `json:"untested"`
	}{total, len(dirs), untested})
}

func ratio(test, prod int) float64 {
	if prod == 0 {
		return 0
	}
	return float64(int(float64(test)/float64(prod)*100+0.5)) / 100
}

func printJSON(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(line))
	return nil
}

// countFile returns the line count of a Go file and how many top-level
// Test functions it declares.
func countFile(path string) (lines, tests int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines++
		if strings.HasPrefix(scanner.Text(), "func Test") {
			tests++
		}
	}
	return lines, tests, scanner.Err()
}
