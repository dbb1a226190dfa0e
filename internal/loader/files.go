package loader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Reference data file names, relative to the data directory.
const (
	CurrencyFile = "currency_codes.txt"
	SectorFile   = "sectors.txt"
)

// IOError reports a reference data file that could not be read. It is
// fatal at startup.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ReadLines reads a newline-delimited UTF-8 list. Lines are trimmed and
// NFC-normalised; blank lines are skipped.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, norm.NFC.String(line))
	}
	if err := sc.Err(); err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	return lines, nil
}

// Pools are the value sets generated entities draw from.
type Pools struct {
	Countries  []string
	Currencies []string
	Sectors    []string
}

// LoadPools reads the currency and sector lists from dataDir and pairs
// them with the full country list.
func LoadPools(dataDir string) (Pools, error) {
	currencies, err := ReadLines(filepath.Join(dataDir, CurrencyFile))
	if err != nil {
		return Pools{}, err
	}
	sectors, err := ReadLines(filepath.Join(dataDir, SectorFile))
	if err != nil {
		return Pools{}, err
	}
	p := Pools{Countries: Countries(), Currencies: currencies, Sectors: sectors}
	if err := p.Validate(); err != nil {
		return Pools{}, err
	}
	return p, nil
}

// Validate reports an empty pool.
func (p Pools) Validate() error {
	switch {
	case len(p.Countries) == 0:
		return fmt.Errorf("pools: no countries")
	case len(p.Currencies) == 0:
		return fmt.Errorf("pools: no currencies")
	case len(p.Sectors) == 0:
		return fmt.Errorf("pools: no sectors")
	}
	return nil
}
